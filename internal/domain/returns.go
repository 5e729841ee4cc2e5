package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReturnStatus описывает жизненный цикл заявки на возврат.
type ReturnStatus string

const (
	// ReturnStatusRequested — заявка создана покупателем/оператором.
	ReturnStatusRequested ReturnStatus = "Requested"
	// ReturnStatusReceived — товар получен складом (необязательный шаг).
	ReturnStatusReceived ReturnStatus = "Received"
	// ReturnStatusApproved — возврат одобрен без денежной компенсации (терминальный).
	ReturnStatusApproved ReturnStatus = "Approved"
	// ReturnStatusDenied — возврат отклонён; допускает повторное открытие.
	ReturnStatusDenied ReturnStatus = "Denied"
	// ReturnStatusRefunded — средства возвращены через провайдера (терминальный).
	ReturnStatusRefunded ReturnStatus = "Refunded"
)

// ReturnAction — решение оператора при обработке возврата.
type ReturnAction string

const (
	ReturnActionApprove ReturnAction = "Approved"
	ReturnActionDeny    ReturnAction = "Denied"
	ReturnActionRefund  ReturnAction = "Refunded"
)

// returnProcessable перечисляет открытые статусы, из которых допустим process.
var returnProcessable = map[ReturnStatus]bool{
	ReturnStatusRequested: true,
	ReturnStatusReceived:  true,
}

// Return — заявка на возврат по одной позиции заказа. На позицию допускается
// не более одной открытой заявки; отклонённая заявка переоткрывается на
// месте, а не дублируется.
type Return struct {
	ID          string
	OrderItemID string
	OrderID     string
	UserID      string
	Reason      string
	Status      ReturnStatus
	// Qty не может превышать открытый остаток позиции на момент создания
	// заявки и перепроверяется при обработке.
	Qty int32
	// RefundAmountMinor фиксируется при создании: цена позиции × количество.
	RefundAmountMinor int64
	RMANumber         string
	CreatedAt         time.Time
	ReceivedAt        *time.Time
	ProcessedAt       *time.Time
}

// Open сообщает, находится ли заявка в открытом (необработанном) состоянии.
func (r *Return) Open() bool {
	return returnProcessable[r.Status]
}

// Receive отмечает получение товара складом; допустим только из Requested.
func (r *Return) Receive(at time.Time) error {
	if r.Status != ReturnStatusRequested {
		return ErrInvalidTransition
	}
	r.Status = ReturnStatusReceived
	r.ReceivedAt = &at
	return nil
}

// Resolve фиксирует решение оператора; допустим из любого открытого статуса.
func (r *Return) Resolve(action ReturnAction, at time.Time) error {
	if !returnProcessable[r.Status] {
		return ErrInvalidTransition
	}
	switch action {
	case ReturnActionApprove:
		r.Status = ReturnStatusApproved
	case ReturnActionDeny:
		r.Status = ReturnStatusDenied
	case ReturnActionRefund:
		r.Status = ReturnStatusRefunded
	default:
		return ErrInvalidTransition
	}
	r.ProcessedAt = &at
	return nil
}

// Reopen возвращает отклонённую заявку в Requested, очищая отметки
// processed_at и received_at. Единственный путь повторного входа.
func (r *Return) Reopen() error {
	if r.Status != ReturnStatusDenied {
		return ErrInvalidTransition
	}
	r.Status = ReturnStatusRequested
	r.ProcessedAt = nil
	r.ReceivedAt = nil
	return nil
}

// Validate проверяет ключевые поля заявки.
func (r *Return) Validate() []error {
	var errs []error

	if r.OrderItemID == "" {
		errs = append(errs, ErrOrderItemNotFound)
	}
	if r.Reason == "" {
		errs = append(errs, ErrReasonRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}

	return errs
}

// GenerateRMANumber генерирует уникальный номер RMA вида RMA-XXXXXXXX.
func GenerateRMANumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "RMA-" + raw[:8]
}
