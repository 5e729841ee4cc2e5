package domain

// StockChange — результат атомарной мутации остатка: значение до и после.
type StockChange struct {
	Before int32
	After  int32
}

// VariantRepository описывает хранилище вариантов товара. ReserveStock и
// ReleaseStock — единственные пути мутации остатка; обе операции атомарны
// относительно конкурентных вызовов по одному SKU.
type VariantRepository interface {
	// Create сохраняет новый вариант; ErrVariantExists, если SKU занят.
	Create(variant ProductVariant) error
	// Get возвращает вариант по SKU или ErrVariantNotFound.
	Get(sku string) (ProductVariant, error)
	// Save обновляет атрибуты варианта (кроме остатка).
	Save(variant ProductVariant) error
	// ReserveStock условно уменьшает остаток: decrement выполняется только
	// если qty <= доступного остатка, иначе ErrInsufficientStock.
	ReserveStock(sku string, qty int32) (StockChange, error)
	// ReleaseStock атомарно увеличивает остаток.
	ReleaseStock(sku string, qty int32) (StockChange, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями и адресами как одно
	// целое. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByItem возвращает заказ, содержащий указанную позицию,
	// или ErrOrderItemNotFound.
	GetByItem(itemID string) (Order, error)
	// ListByUser возвращает заказы покупателя, новые первыми.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// ReturnRepository описывает хранилище заявок на возврат.
type ReturnRepository interface {
	Create(ret Return) error
	// Get возвращает заявку или ErrReturnNotFound.
	Get(id string) (Return, error)
	// OpenByItem возвращает открытую заявку по позиции или ErrReturnNotFound.
	OpenByItem(itemID string) (Return, error)
	// List возвращает заявки с опциональным фильтром по статусу ("" — все).
	List(status ReturnStatus, limit int) ([]Return, error)
	Save(ret Return) error
}

// CouponRepository описывает хранилище купонов и записей об их использовании.
type CouponRepository interface {
	Create(coupon Coupon) error
	// GetByCode возвращает купон или ErrCouponNotFound.
	GetByCode(code string) (Coupon, error)
	Save(coupon Coupon) error
	// RecordUsage фиксирует одноразовое применение купона пользователем.
	RecordUsage(usage CouponUsage) error
	// HasUsage сообщает, применял ли пользователь купон ранее.
	HasUsage(userID, code string) (bool, error)
}
