package fulfillment

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type testEnv struct {
	service  *Service
	orders   domain.OrderRepository
	variants domain.VariantRepository
	order    domain.Order
}

func newTestEnv(t *testing.T, itemQty, stock int32) *testEnv {
	t.Helper()

	orders := memory.NewOrderRepository()
	variants := memory.NewVariantRepository()
	err := variants.Create(domain.ProductVariant{
		SKU:        "SKU-1",
		ProductID:  "prod-1",
		Quantity:   stock,
		PriceMinor: 2500,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	ledger := inventory.NewLedger(variants, memory.NewInventoryLogRepository(), nil)

	order := domain.Order{
		ID:     uuid.NewString(),
		Number: domain.GenerateOrderNumber(),
		UserID: "user-1",
		Status: domain.OrderStatusPaid,
		Items: []domain.OrderItem{
			{ID: uuid.NewString(), SKU: "SKU-1", Qty: itemQty, PriceMinor: 2500, Status: domain.ItemStatusPaid},
			{ID: uuid.NewString(), SKU: "SKU-1", Qty: 1, PriceMinor: 2500, Status: domain.ItemStatusPaid},
		},
		TotalMinor: int64(itemQty+1) * 2500,
		CreatedAt:  time.Now().UTC(),
	}
	if err := orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	service := NewService(orders, ledger, memory.NewOutboxRepository(), log.New().WithField("component", "fulfillment-test"))
	service.retryDelay = 0

	return &testEnv{service: service, orders: orders, variants: variants, order: order}
}

func (e *testEnv) item(t *testing.T, idx int) domain.OrderItem {
	t.Helper()
	order, err := e.orders.Get(e.order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return order.Items[idx]
}

func (e *testEnv) orderStatus(t *testing.T) domain.OrderStatus {
	t.Helper()
	order, err := e.orders.Get(e.order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return order.Status
}

func TestService_FulfillAndShip(t *testing.T) {
	env := newTestEnv(t, 2, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.Fulfill(itemID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if got := env.item(t, 0).Status; got != domain.ItemStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", got)
	}
	if got := env.orderStatus(t); got != domain.OrderStatusPartiallyFulfilled {
		t.Fatalf("expected partially_fulfilled order, got %s", got)
	}

	if err := env.service.Ship(itemID, "1Z999AA10123456784"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	item := env.item(t, 0)
	if item.Status != domain.ItemStatusShipped {
		t.Fatalf("expected shipped, got %s", item.Status)
	}
	if item.TrackingNumber != "1Z999AA10123456784" {
		t.Fatalf("unexpected tracking number: %s", item.TrackingNumber)
	}
	if got := env.orderStatus(t); got != domain.OrderStatusPartiallyShipped {
		t.Fatalf("expected partially_shipped order, got %s", got)
	}
}

func TestService_ShipRequiresTracking(t *testing.T) {
	env := newTestEnv(t, 1, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.Fulfill(itemID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := env.service.Ship(itemID, "  "); !errors.Is(err, domain.ErrTrackingRequired) {
		t.Fatalf("expected ErrTrackingRequired, got %v", err)
	}
	if got := env.item(t, 0).Status; got != domain.ItemStatusFulfilled {
		t.Fatalf("failed ship must not change status, got %s", got)
	}
}

func TestService_FulfillShippedItemRejected(t *testing.T) {
	env := newTestEnv(t, 1, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.Fulfill(itemID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := env.service.Ship(itemID, "TRACK-1"); err != nil {
		t.Fatalf("ship: %v", err)
	}

	if err := env.service.Fulfill(itemID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := env.item(t, 0).Status; got != domain.ItemStatusShipped {
		t.Fatalf("rejected transition must not change status, got %s", got)
	}
}

func TestService_BackorderRoundTrip(t *testing.T) {
	env := newTestEnv(t, 1, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.Backorder(itemID); err != nil {
		t.Fatalf("backorder: %v", err)
	}
	if got := env.orderStatus(t); got != domain.OrderStatusInFulfillment {
		t.Fatalf("backordered item must force in_fulfillment, got %s", got)
	}

	if err := env.service.Fulfill(itemID); err != nil {
		t.Fatalf("fulfill from backorder: %v", err)
	}
	if got := env.item(t, 0).Status; got != domain.ItemStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", got)
	}
}

func TestService_CancelPartialWithRestock(t *testing.T) {
	env := newTestEnv(t, 3, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.Cancel(itemID, 2, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	item := env.item(t, 0)
	if item.CancelledQty != 2 {
		t.Fatalf("expected cancelled qty 2, got %d", item.CancelledQty)
	}
	if item.Status != domain.ItemStatusPaid {
		t.Fatalf("partial cancel must keep status, got %s", item.Status)
	}
	if item.OpenQty() != 1 {
		t.Fatalf("expected open qty 1, got %d", item.OpenQty())
	}

	variant, err := env.variants.Get("SKU-1")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 7 {
		t.Fatalf("expected restocked quantity 7, got %d", variant.Quantity)
	}
}

func TestService_CancelFullMakesTerminal(t *testing.T) {
	env := newTestEnv(t, 2, 5)
	itemID := env.order.Items[0].ID

	// qty <= 0 отменяет весь открытый остаток.
	if err := env.service.Cancel(itemID, 0, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	item := env.item(t, 0)
	if item.Status != domain.ItemStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", item.Status)
	}

	variant, err := env.variants.Get("SKU-1")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 5 {
		t.Fatalf("cancel without restock must keep stock, got %d", variant.Quantity)
	}

	if err := env.service.Cancel(itemID, 1, false); !errors.Is(err, domain.ErrCancelQtyExceedsOpen) {
		t.Fatalf("expected ErrCancelQtyExceedsOpen, got %v", err)
	}
}

func TestService_CancelQtyExceedsOpen(t *testing.T) {
	env := newTestEnv(t, 2, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.Cancel(itemID, 5, false); !errors.Is(err, domain.ErrCancelQtyExceedsOpen) {
		t.Fatalf("expected ErrCancelQtyExceedsOpen, got %v", err)
	}
	if got := env.item(t, 0).CancelledQty; got != 0 {
		t.Fatalf("rejected cancel must not change state, got %d", got)
	}
}

func TestService_UpdateTracking(t *testing.T) {
	env := newTestEnv(t, 1, 5)
	itemID := env.order.Items[0].ID

	if err := env.service.UpdateTracking(itemID, "TRACK-NEW"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("tracking update requires shipped item, got %v", err)
	}

	if err := env.service.Fulfill(itemID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := env.service.Ship(itemID, "TRACK-OLD"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := env.service.UpdateTracking(itemID, "TRACK-NEW"); err != nil {
		t.Fatalf("update tracking: %v", err)
	}
	if got := env.item(t, 0).TrackingNumber; got != "TRACK-NEW" {
		t.Fatalf("unexpected tracking number: %s", got)
	}
}

func TestService_UnknownItem(t *testing.T) {
	env := newTestEnv(t, 1, 5)

	if err := env.service.Fulfill("missing"); !errors.Is(err, domain.ErrOrderItemNotFound) {
		t.Fatalf("expected ErrOrderItemNotFound, got %v", err)
	}
}

// Два конкурентных fulfill одной позиции: один применяется, второй отклоняется
// таблицей переходов после перезагрузки по конфликту версий.
func TestService_ConcurrentDuplicateFulfill(t *testing.T) {
	env := newTestEnv(t, 1, 5)
	itemID := env.order.Items[0].ID

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		invalid int
	)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := env.service.Fulfill(itemID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, domain.ErrInvalidTransition):
				invalid++
			default:
				t.Errorf("unexpected fulfill error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if applied != 1 || invalid != 1 {
		t.Fatalf("expected one applied and one rejected fulfill, got applied=%d invalid=%d", applied, invalid)
	}
	if got := env.item(t, 0).Status; got != domain.ItemStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", got)
	}
}
