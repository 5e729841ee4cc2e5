package returns

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type stubNotifier struct {
	returnCalls int
	err         error
}

func (n *stubNotifier) OrderPlaced(domain.Order) error      { return nil }
func (n *stubNotifier) ReturnProcessed(domain.Return) error { n.returnCalls++; return n.err }

type returnsEnv struct {
	service  *Service
	orders   domain.OrderRepository
	variants domain.VariantRepository
	gateway  *payment.MockGateway
	notifier *stubNotifier
	order    domain.Order
}

func newReturnsEnv(t *testing.T, itemQty int32, itemStatus domain.ItemStatus) *returnsEnv {
	t.Helper()

	orders := memory.NewOrderRepository()
	variants := memory.NewVariantRepository()
	err := variants.Create(domain.ProductVariant{
		SKU:        "SKU-1",
		ProductID:  "prod-1",
		Quantity:   5,
		PriceMinor: 2500,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	order := domain.Order{
		ID:         uuid.NewString(),
		Number:     domain.GenerateOrderNumber(),
		UserID:     "user-1",
		Status:     domain.OrderStatusShipped,
		PaymentRef: "SIMULATED00000001",
		Items: []domain.OrderItem{
			{ID: uuid.NewString(), SKU: "SKU-1", Qty: itemQty, PriceMinor: 2500, Status: itemStatus, TrackingNumber: "TRACK-1"},
		},
		TotalMinor: int64(itemQty) * 2500,
		CreatedAt:  time.Now().UTC(),
	}
	if err := orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	gateway := payment.NewMockGateway()
	notifier := &stubNotifier{}
	ledger := inventory.NewLedger(variants, memory.NewInventoryLogRepository(), nil)

	service := NewService(
		memory.NewReturnRepository(),
		orders,
		ledger,
		gateway,
		memory.NewOutboxRepository(),
		notifier,
		log.New().WithField("component", "returns-test"),
	)
	service.retryDelay = 0

	return &returnsEnv{
		service:  service,
		orders:   orders,
		variants: variants,
		gateway:  gateway,
		notifier: notifier,
		order:    order,
	}
}

func (e *returnsEnv) item(t *testing.T) domain.OrderItem {
	t.Helper()
	order, err := e.orders.Get(e.order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return order.Items[0]
}

func TestService_Request(t *testing.T) {
	env := newReturnsEnv(t, 3, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 2, "wrong size")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ret.Status != domain.ReturnStatusRequested {
		t.Fatalf("expected Requested, got %s", ret.Status)
	}
	if ret.Qty != 2 {
		t.Fatalf("expected qty 2, got %d", ret.Qty)
	}
	if ret.RefundAmountMinor != 5000 {
		t.Fatalf("expected refund amount 5000, got %d", ret.RefundAmountMinor)
	}
	if len(ret.RMANumber) != 12 || ret.RMANumber[:4] != "RMA-" {
		t.Fatalf("unexpected rma number: %s", ret.RMANumber)
	}
}

func TestService_RequestDefaultsToOpenRemainder(t *testing.T) {
	env := newReturnsEnv(t, 3, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 0, "changed mind")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ret.Qty != 3 {
		t.Fatalf("expected full remainder 3, got %d", ret.Qty)
	}
}

func TestService_RequestRejections(t *testing.T) {
	env := newReturnsEnv(t, 2, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	if _, err := env.service.Request("user-1", itemID, 1, "  "); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if _, err := env.service.Request("user-1", itemID, 3, "too many"); !errors.Is(err, domain.ErrReturnQtyExceedsOpen) {
		t.Fatalf("expected ErrReturnQtyExceedsOpen, got %v", err)
	}
	if _, err := env.service.Request("user-1", "missing", 1, "reason"); !errors.Is(err, domain.ErrOrderItemNotFound) {
		t.Fatalf("expected ErrOrderItemNotFound, got %v", err)
	}

	if _, err := env.service.Request("user-1", itemID, 1, "first"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.service.Request("user-1", itemID, 1, "second"); !errors.Is(err, domain.ErrReturnAlreadyOpen) {
		t.Fatalf("expected ErrReturnAlreadyOpen, got %v", err)
	}
}

func TestService_RequestRequiresFulfilledOrShipped(t *testing.T) {
	env := newReturnsEnv(t, 1, domain.ItemStatusPaid)
	itemID := env.order.Items[0].ID

	if _, err := env.service.Request("user-1", itemID, 1, "early"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_RequestFromFulfilledItem(t *testing.T) {
	env := newReturnsEnv(t, 2, domain.ItemStatusFulfilled)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 2, "wrong item picked")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ret.Status != domain.ReturnStatusRequested {
		t.Fatalf("expected Requested, got %s", ret.Status)
	}
}

func TestService_RefundFlow(t *testing.T) {
	env := newReturnsEnv(t, 2, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 2, "defective")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	received, err := env.service.Receive(ret.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Status != domain.ReturnStatusReceived || received.ReceivedAt == nil {
		t.Fatalf("unexpected received state: %+v", received)
	}

	processed, err := env.service.Process(ret.ID, domain.ReturnActionRefund, true)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != domain.ReturnStatusRefunded || processed.ProcessedAt == nil {
		t.Fatalf("unexpected processed state: %+v", processed)
	}

	if env.gateway.RefundCalls != 1 {
		t.Fatalf("expected single refund call, got %d", env.gateway.RefundCalls)
	}
	if env.gateway.RefundedAmounts[0] != 5000 {
		t.Fatalf("expected refund 5000, got %d", env.gateway.RefundedAmounts[0])
	}

	item := env.item(t)
	if item.Status != domain.ItemStatusRefunded {
		t.Fatalf("expected refunded item, got %s", item.Status)
	}
	if item.ReturnedQty != 2 {
		t.Fatalf("expected returned qty 2, got %d", item.ReturnedQty)
	}

	variant, err := env.variants.Get("SKU-1")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 7 {
		t.Fatalf("expected restocked quantity 7, got %d", variant.Quantity)
	}
	if env.notifier.returnCalls != 1 {
		t.Fatalf("expected processed notification, got %d", env.notifier.returnCalls)
	}
}

func TestService_RefundDeclinedLeavesReturnOpen(t *testing.T) {
	env := newReturnsEnv(t, 1, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 1, "defective")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	env.gateway.RefundApproved = false
	env.gateway.RefundReason = "period expired"

	if _, err := env.service.Process(ret.ID, domain.ReturnActionRefund, true); !errors.Is(err, domain.ErrRefundDeclined) {
		t.Fatalf("expected ErrRefundDeclined, got %v", err)
	}

	current, err := env.service.Get(ret.ID)
	if err != nil {
		t.Fatalf("get return: %v", err)
	}
	if current.Status != domain.ReturnStatusRequested {
		t.Fatalf("declined refund must leave return open, got %s", current.Status)
	}
	if got := env.item(t).ReturnedQty; got != 0 {
		t.Fatalf("declined refund must not mutate item, got returned qty %d", got)
	}
}

func TestService_ApproveWithoutRefund(t *testing.T) {
	env := newReturnsEnv(t, 1, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 1, "goodwill")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	processed, err := env.service.Process(ret.ID, domain.ReturnActionApprove, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != domain.ReturnStatusApproved {
		t.Fatalf("expected Approved, got %s", processed.Status)
	}
	if env.gateway.RefundCalls != 0 {
		t.Fatalf("approve must not touch gateway, got %d", env.gateway.RefundCalls)
	}

	item := env.item(t)
	if item.Status != domain.ItemStatusReturned {
		t.Fatalf("expected returned item, got %s", item.Status)
	}

	variant, err := env.variants.Get("SKU-1")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 5 {
		t.Fatalf("no restock requested, stock must stay 5, got %d", variant.Quantity)
	}
}

func TestService_DenyAndReopen(t *testing.T) {
	env := newReturnsEnv(t, 1, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 1, "suspicious")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	denied, err := env.service.Process(ret.ID, domain.ReturnActionDeny, false)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if denied.Status != domain.ReturnStatusDenied {
		t.Fatalf("expected Denied, got %s", denied.Status)
	}
	if got := env.item(t).ReturnedQty; got != 0 {
		t.Fatalf("deny must not mutate item, got returned qty %d", got)
	}

	// Повторная обработка закрытой заявки отклоняется.
	if _, err := env.service.Process(ret.ID, domain.ReturnActionApprove, false); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	reopened, err := env.service.Reopen(ret.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != domain.ReturnStatusRequested {
		t.Fatalf("expected Requested after reopen, got %s", reopened.Status)
	}
	if reopened.ProcessedAt != nil || reopened.ReceivedAt != nil {
		t.Fatalf("reopen must clear timestamps: %+v", reopened)
	}

	if _, err := env.service.Process(ret.ID, domain.ReturnActionApprove, false); err != nil {
		t.Fatalf("process after reopen: %v", err)
	}
}

func TestService_ReopenOnlyFromDenied(t *testing.T) {
	env := newReturnsEnv(t, 1, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 1, "reason")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.service.Reopen(ret.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// После отказа по позиции могут завести новую заявку; Reopen старой не должен
// давать вторую открытую заявку на ту же позицию.
func TestService_ReopenRejectedWhenAnotherReturnOpen(t *testing.T) {
	env := newReturnsEnv(t, 2, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	first, err := env.service.Request("user-1", itemID, 1, "suspicious")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.service.Process(first.ID, domain.ReturnActionDeny, false); err != nil {
		t.Fatalf("deny: %v", err)
	}

	second, err := env.service.Request("user-1", itemID, 1, "defective")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if _, err := env.service.Reopen(first.ID); !errors.Is(err, domain.ErrReturnAlreadyOpen) {
		t.Fatalf("expected ErrReturnAlreadyOpen, got %v", err)
	}

	// Первая заявка осталась в Denied, открыта только вторая.
	current, err := env.service.Get(first.ID)
	if err != nil {
		t.Fatalf("get first return: %v", err)
	}
	if current.Status != domain.ReturnStatusDenied {
		t.Fatalf("failed reopen must not mutate return, got %s", current.Status)
	}
	open, err := env.service.Get(second.ID)
	if err != nil {
		t.Fatalf("get second return: %v", err)
	}
	if open.Status != domain.ReturnStatusRequested {
		t.Fatalf("expected second return open, got %s", open.Status)
	}
}

// Остаток перепроверяется при обработке: отмена, случившаяся после создания
// заявки, уменьшает открытый остаток и блокирует возврат.
func TestService_ProcessRechecksRemainder(t *testing.T) {
	env := newReturnsEnv(t, 2, domain.ItemStatusShipped)
	itemID := env.order.Items[0].ID

	ret, err := env.service.Request("user-1", itemID, 2, "reason")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Имитируем конкурентную отмену одной единицы после создания заявки.
	order, err := env.orders.Get(env.order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if err := order.Items[0].Cancel(1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := env.orders.Save(order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	if _, err := env.service.Process(ret.ID, domain.ReturnActionRefund, false); !errors.Is(err, domain.ErrReturnQtyExceedsOpen) {
		t.Fatalf("expected ErrReturnQtyExceedsOpen, got %v", err)
	}
	if env.gateway.RefundCalls != 0 {
		t.Fatalf("gateway must not be called, got %d", env.gateway.RefundCalls)
	}
}
