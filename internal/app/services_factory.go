package app

import (
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/returns"
)

// Services — собранное ядро приложения: леджер остатков, checkout,
// исполнение заказов и возвраты поверх общих зависимостей.
type Services struct {
	Ledger      *inventory.Ledger
	Checkout    *checkout.Orchestrator
	Fulfillment *fulfillment.Service
	Returns     *returns.Service
}

// NewServices связывает доменные сервисы поверх переданных зависимостей.
// kafkaProducer может быть nil: тогда checkout пишет события только в outbox.
func NewServices(deps *Dependencies, kafkaProducer *kafka.Producer) *Services {
	ledger := inventory.NewLedger(deps.Variants, deps.InventoryLog, nil)

	checkoutSvc := checkout.NewOrchestrator(checkout.Deps{
		Orders:        deps.Orders,
		Coupons:       deps.Coupons,
		Ledger:        ledger,
		Gateway:       deps.Gateway,
		Outbox:        deps.OutboxRepo,
		Idempotency:   deps.IdempotencyRepo,
		Notifier:      deps.Notifier,
		KafkaProducer: kafkaProducer,
	})

	return &Services{
		Ledger:      ledger,
		Checkout:    checkoutSvc,
		Fulfillment: fulfillment.NewService(deps.Orders, ledger, deps.OutboxRepo, nil),
		Returns: returns.NewService(
			deps.Returns,
			deps.Orders,
			ledger,
			deps.Gateway,
			deps.OutboxRepo,
			deps.Notifier,
			nil,
		),
	}
}
