package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemStatus описывает жизненный цикл одной позиции заказа.
type ItemStatus string

const (
	// ItemStatusPaid — позиция оплачена, исполнение ещё не начато.
	ItemStatusPaid ItemStatus = "paid"
	// ItemStatusFulfilled — позиция собрана и готова к отгрузке.
	ItemStatusFulfilled ItemStatus = "fulfilled"
	// ItemStatusShipped — позиция отгружена, присвоен tracking number.
	ItemStatusShipped ItemStatus = "shipped"
	// ItemStatusBackordered — позиции не хватило стока, ждём пополнения.
	ItemStatusBackordered ItemStatus = "backordered"
	// ItemStatusCancelled — позиция отменена полностью (терминальный).
	ItemStatusCancelled ItemStatus = "cancelled"
	// ItemStatusReturned — позиция возвращена без денежного возврата (терминальный).
	ItemStatusReturned ItemStatus = "returned"
	// ItemStatusRefunded — позиция возвращена с возвратом средств (терминальный).
	ItemStatusRefunded ItemStatus = "refunded"
)

// ItemAction — действие над позицией заказа.
type ItemAction string

const (
	ItemActionFulfill   ItemAction = "fulfill"
	ItemActionBackorder ItemAction = "backorder"
	ItemActionShip      ItemAction = "ship"
)

// itemTransitions — таблица переходов "текущий статус × действие → новый статус".
// Недопустимые комбинации отсутствуют в таблице и отклоняются целиком,
// а не обнаруживаются по упущению.
var itemTransitions = map[ItemStatus]map[ItemAction]ItemStatus{
	ItemStatusPaid: {
		ItemActionFulfill:   ItemStatusFulfilled,
		ItemActionBackorder: ItemStatusBackordered,
	},
	ItemStatusFulfilled: {
		ItemActionShip:      ItemStatusShipped,
		ItemActionBackorder: ItemStatusBackordered,
	},
	ItemStatusBackordered: {
		ItemActionFulfill: ItemStatusFulfilled,
	},
}

// NextItemStatus возвращает статус после действия или ErrInvalidTransition.
func NextItemStatus(current ItemStatus, action ItemAction) (ItemStatus, error) {
	next, ok := itemTransitions[current][action]
	if !ok {
		return current, ErrInvalidTransition
	}
	return next, nil
}

// OrderStatus — производный статус заказа; никогда не хранится как второй
// источник истины, а пересчитывается из статусов позиций после каждой мутации.
type OrderStatus string

const (
	OrderStatusPaid               OrderStatus = "paid"
	OrderStatusInFulfillment      OrderStatus = "in_fulfillment"
	OrderStatusFulfilled          OrderStatus = "fulfilled"
	OrderStatusPartiallyFulfilled OrderStatus = "partially_fulfilled"
	OrderStatusShipped            OrderStatus = "shipped"
	OrderStatusPartiallyShipped   OrderStatus = "partially_shipped"
)

// OrderItem представляет одну позицию заказа. Цена фиксируется в момент
// оформления и неизменна: последующие изменения цены варианта не влияют на
// исторические заказы.
type OrderItem struct {
	ID      string
	OrderID string
	SKU     string
	// Qty — заказанное количество, фиксируется при создании.
	Qty int32
	// CancelledQty и ReturnedQty монотонно неубывающие;
	// инвариант: CancelledQty + ReturnedQty <= Qty.
	CancelledQty int32
	ReturnedQty  int32
	// PriceMinor — зафиксированная цена за единицу в минорных единицах.
	PriceMinor     int64
	Status         ItemStatus
	TrackingNumber string
	CreatedAt      time.Time
}

// OpenQty возвращает открытый остаток позиции: заказано минус отменено и возвращено.
func (i *OrderItem) OpenQty() int32 {
	return i.Qty - i.CancelledQty - i.ReturnedQty
}

// Transition применяет действие через таблицу переходов.
func (i *OrderItem) Transition(action ItemAction) error {
	next, err := NextItemStatus(i.Status, action)
	if err != nil {
		return err
	}
	i.Status = next
	return nil
}

// Cancel увеличивает отменённое количество; при полном исчерпании позиция
// становится терминально cancelled.
func (i *OrderItem) Cancel(qty int32) error {
	if qty <= 0 {
		return ErrQtyInvalid
	}
	if qty > i.OpenQty() {
		return ErrCancelQtyExceedsOpen
	}
	i.CancelledQty += qty
	if i.CancelledQty+i.ReturnedQty >= i.Qty {
		i.Status = ItemStatusCancelled
	}
	return nil
}

// MarkReturned увеличивает возвращённое количество; при полном исчерпании
// позиция получает терминальный статус final (returned либо refunded).
func (i *OrderItem) MarkReturned(qty int32, final ItemStatus) error {
	if qty <= 0 {
		return ErrQtyInvalid
	}
	if qty > i.OpenQty() {
		return ErrReturnQtyExceedsOpen
	}
	i.ReturnedQty += qty
	if i.CancelledQty+i.ReturnedQty >= i.Qty {
		i.Status = final
	}
	return nil
}

// Order агрегирует заказ, его позиции и адреса. Создаётся атомарно при
// checkout и никогда не сохраняется частично.
type Order struct {
	ID     string
	Number string
	UserID string
	Status OrderStatus
	// TotalMinor — итог к оплате (после скидки) в минорных единицах.
	TotalMinor int64
	// DiscountMinor — применённая скидка по купону.
	DiscountMinor int64
	CouponCode    string
	// PaymentRef — референс платёжного провайдера; используется при возвратах.
	PaymentRef string
	Shipping   Address
	Billing    Address
	Items      []OrderItem
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrCartEmpty)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	errs = append(errs, o.Shipping.Validate()...)
	errs = append(errs, o.Billing.Validate()...)

	for idx := range o.Items {
		item := &o.Items[idx]
		if item.SKU == "" {
			errs = append(errs, ErrSKURequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrPriceNegative)
		}
		if item.CancelledQty+item.ReturnedQty > item.Qty {
			errs = append(errs, ErrCancelQtyExceedsOpen)
		}
	}

	return errs
}

// Item возвращает позицию заказа по идентификатору.
func (o *Order) Item(itemID string) (*OrderItem, error) {
	for idx := range o.Items {
		if o.Items[idx].ID == itemID {
			return &o.Items[idx], nil
		}
	}
	return nil, ErrOrderItemNotFound
}

// DeriveOrderStatus вычисляет статус заказа из мультимножества статусов позиций.
// Чистая функция; вызывается после каждой мутации позиции в той же транзакции.
func DeriveOrderStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return OrderStatusInFulfillment
	}

	var paid, fulfilled, shipped, backordered int
	for idx := range items {
		switch items[idx].Status {
		case ItemStatusPaid:
			paid++
		case ItemStatusFulfilled:
			fulfilled++
		case ItemStatusShipped:
			shipped++
		case ItemStatusBackordered:
			backordered++
		}
	}

	total := len(items)
	switch {
	case backordered > 0:
		return OrderStatusInFulfillment
	case paid == total:
		return OrderStatusPaid
	case fulfilled == total:
		return OrderStatusFulfilled
	case shipped == total:
		return OrderStatusShipped
	case shipped > 0:
		return OrderStatusPartiallyShipped
	case fulfilled > 0:
		return OrderStatusPartiallyFulfilled
	default:
		return OrderStatusInFulfillment
	}
}

// GenerateOrderNumber генерирует номер заказа вида SKS + 7 символов.
func GenerateOrderNumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "SKS" + raw[:7]
}
