package app

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
)

func TestNewDependencies_AllFieldsSet(t *testing.T) {
	deps := NewDependencies(nil)

	if deps.Orders == nil || deps.Variants == nil || deps.Returns == nil || deps.Coupons == nil {
		t.Fatalf("repositories must be initialized: %+v", deps)
	}
	if deps.OutboxRepo == nil || deps.InventoryLog == nil || deps.IdempotencyRepo == nil {
		t.Fatalf("support repositories must be initialized: %+v", deps)
	}
	if deps.Gateway == nil {
		t.Fatal("Gateway should not be nil")
	}
	if deps.Notifier == nil {
		t.Fatal("Notifier should not be nil")
	}
	if deps.Logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestDependencies_OrderRoundTrip(t *testing.T) {
	deps := NewDependencies(nil)

	order := newTestOrder()
	if err := deps.Orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := deps.Orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Number != order.Number || len(got.Items) != 1 {
		t.Fatalf("unexpected order payload: %+v", got)
	}
}

func TestNewDependenciesFromConfig_Memory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverMemory

	deps, closeFn, err := NewDependenciesFromConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewDependenciesFromConfig failed: %v", err)
	}
	defer func() { _ = closeFn() }()

	if deps.Orders == nil || deps.Variants == nil {
		t.Fatalf("repositories must be initialized: %+v", deps)
	}
}

func TestNewServices_Wiring(t *testing.T) {
	services := NewServices(NewDependencies(nil), nil)

	if services.Ledger == nil {
		t.Fatal("Ledger should not be nil")
	}
	if services.Checkout == nil {
		t.Fatal("Checkout should not be nil")
	}
	if services.Fulfillment == nil {
		t.Fatal("Fulfillment should not be nil")
	}
	if services.Returns == nil {
		t.Fatal("Returns should not be nil")
	}
}

// Сквозной сценарий на собранном ядре: checkout списывает остаток,
// fulfillment доводит позицию до отгрузки.
func TestNewServices_CheckoutFlow(t *testing.T) {
	deps := NewDependencies(nil)
	services := NewServices(deps, nil)

	if err := deps.Variants.Create(domain.ProductVariant{
		SKU:        "SKU-APP-1",
		ProductID:  "prod-1",
		Quantity:   5,
		PriceMinor: 2000,
		IsActive:   true,
	}); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	result, err := services.Checkout.Checkout(checkout.Request{
		UserID: "user-1",
		Lines: []checkout.CartLine{
			{SKU: "SKU-APP-1", Qty: 2, UnitPriceMinor: 2000},
		},
		Instrument: domain.PaymentInstrument{
			CardNumber:     "4111111111111111",
			ExpirationDate: "12/30",
			CVV:            "123",
			HolderName:     "Test User",
		},
		ShippingAddress: domain.Address{
			FullName: "Test User",
			Street:   "1 Test St",
			City:     "Testville",
			State:    "TS",
			ZipCode:  "00001",
			Country:  "US",
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.TotalMinor != 4000 {
		t.Fatalf("expected total 4000, got %d", result.TotalMinor)
	}

	variant, err := deps.Variants.Get("SKU-APP-1")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 3 {
		t.Fatalf("expected stock 3 after checkout, got %d", variant.Quantity)
	}

	order, err := deps.Orders.Get(result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}

	itemID := order.Items[0].ID
	if err := services.Fulfillment.Fulfill(itemID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := services.Fulfillment.Ship(itemID, "TRK-1"); err != nil {
		t.Fatalf("ship: %v", err)
	}

	shipped, err := deps.Orders.Get(result.OrderID)
	if err != nil {
		t.Fatalf("get shipped order: %v", err)
	}
	if shipped.Items[0].Status != domain.ItemStatusShipped {
		t.Fatalf("expected shipped item, got %s", shipped.Items[0].Status)
	}
	if shipped.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped order, got %s", shipped.Status)
	}
}
