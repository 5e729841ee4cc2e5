package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders          domain.OrderRepository
	Variants        domain.VariantRepository
	Returns         domain.ReturnRepository
	Coupons         domain.CouponRepository
	OutboxRepo      domain.OutboxRepository
	InventoryLog    domain.InventoryLogRepository
	IdempotencyRepo domain.IdempotencyRepository

	Gateway  domain.PaymentGateway
	Notifier domain.Notifier
	Logger   *log.Entry
}

// NewDependencies создаёт и инициализирует все зависимости приложения
// поверх in-memory хранилища.
// NOTE: В production окружении payment gateway и notifier должны быть
// заменены на реальные клиенты внешних сервисов.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:          memory.NewOrderRepository(),
		Variants:        memory.NewVariantRepository(),
		Returns:         memory.NewReturnRepository(),
		Coupons:         memory.NewCouponRepository(),
		OutboxRepo:      memory.NewOutboxRepository(),
		InventoryLog:    memory.NewInventoryLogRepository(),
		IdempotencyRepo: memory.NewIdempotencyRepository(),
		Gateway:         payment.NewMockGateway(),
		Notifier:        notify.NewLogNotifier(nil),
		Logger:          logger,
	}
}

// NewDependenciesFromConfig собирает зависимости поверх хранилища,
// выбранного конфигурацией. Возвращённую функцию закрытия вызывающая
// сторона обязана вызвать при остановке.
func NewDependenciesFromConfig(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, func() error, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	rt, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return newDependenciesFromRuntime(rt, logger), rt.closeFn, nil
}

// newDependenciesFromRuntime собирает Dependencies поверх репозиториев,
// выбранных конфигурацией хранилища.
func newDependenciesFromRuntime(rt *runtimeDependencies, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:          rt.orders,
		Variants:        rt.variants,
		Returns:         rt.returns,
		Coupons:         rt.coupons,
		OutboxRepo:      rt.outboxRepo,
		InventoryLog:    rt.inventoryLog,
		IdempotencyRepo: rt.idempotencyRepo,
		Gateway:         payment.NewMockGateway(),
		Notifier:        notify.NewLogNotifier(nil),
		Logger:          logger,
	}
}
