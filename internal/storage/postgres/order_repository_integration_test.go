package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "user-1", now.Add(-time.Minute))

	if err := repo.Create(order1); err != nil {
		t.Fatalf("create order1: %v", err)
	}
	if err := repo.Create(order2); err != nil {
		t.Fatalf("create order2: %v", err)
	}

	got, err := repo.Get(order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.ID != order1.ID || got.UserID != order1.UserID || got.Status != order1.Status {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if got.Number != order1.Number || got.TotalMinor != order1.TotalMinor {
		t.Fatalf("unexpected number/total: %+v", got)
	}
	if got.Shipping != order1.Shipping || got.Billing != order1.Billing {
		t.Fatalf("addresses must round-trip: %+v", got)
	}
	if len(got.Items) != len(order1.Items) {
		t.Fatalf("unexpected items count: got=%d want=%d", len(got.Items), len(order1.Items))
	}

	byItem, err := repo.GetByItem(order1.Items[0].ID)
	if err != nil {
		t.Fatalf("get by item: %v", err)
	}
	if byItem.ID != order1.ID {
		t.Fatalf("expected order %s by item, got %s", order1.ID, byItem.ID)
	}

	listed, err := repo.ListByUser("user-1", 1)
	if err != nil {
		t.Fatalf("list by user with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.ListByUser("user-1", 0)
	if err != nil {
		t.Fatalf("list by user without limit: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}

	item := &got.Items[0]
	if err := item.Transition(domain.ItemActionFulfill); err != nil {
		t.Fatalf("transition item: %v", err)
	}
	got.Status = domain.DeriveOrderStatus(got.Items)
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(got); err != nil {
		t.Fatalf("save order: %v", err)
	}

	updated, err := repo.Get(order1.ID)
	if err != nil {
		t.Fatalf("get updated order: %v", err)
	}
	if updated.Items[0].Status != domain.ItemStatusFulfilled {
		t.Fatalf("item mutation must persist, got %s", updated.Items[0].Status)
	}
	if updated.Status != domain.OrderStatusPartiallyFulfilled {
		t.Fatalf("unexpected derived status after save: %s", updated.Status)
	}
	if updated.Version != got.Version+1 {
		t.Fatalf("unexpected version after save: got=%d want=%d", updated.Version, got.Version+1)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder("order-errors", "user-2", now)

	if _, err := repo.Get("missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := repo.GetByItem("missing-item"); !errors.Is(err, domain.ErrOrderItemNotFound) {
		t.Fatalf("expected ErrOrderItemNotFound, got %v", err)
	}

	if err := repo.Save(base); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on save missing, got %v", err)
	}

	if err := repo.Create(base); err != nil {
		t.Fatalf("create base order: %v", err)
	}
	if err := repo.Create(base); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on duplicate create, got %v", err)
	}

	stale := base
	stale.Status = domain.OrderStatusInFulfillment
	stale.UpdatedAt = now.Add(time.Minute)
	stale.Version = 42
	if err := repo.Save(stale); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on stale save, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}

func sampleOrder(id, userID string, createdAt time.Time) domain.Order {
	address := domain.Address{
		FullName: "Test Customer",
		Street:   "1 Main St",
		City:     "Springfield",
		State:    "IL",
		ZipCode:  "62704",
		Country:  "US",
	}

	items := []domain.OrderItem{
		{
			ID:         id + "-item-1",
			OrderID:    id,
			SKU:        "SKU-1",
			Qty:        2,
			PriceMinor: 2500,
			Status:     domain.ItemStatusPaid,
			CreatedAt:  createdAt,
		},
		{
			ID:         id + "-item-2",
			OrderID:    id,
			SKU:        "SKU-2",
			Qty:        1,
			PriceMinor: 5000,
			Status:     domain.ItemStatusPaid,
			CreatedAt:  createdAt.Add(time.Millisecond),
		},
	}

	return domain.Order{
		ID:         id,
		Number:     domain.GenerateOrderNumber(),
		UserID:     userID,
		Status:     domain.OrderStatusPaid,
		TotalMinor: 10000,
		PaymentRef: "SIMULATED00000001",
		Shipping:   address,
		Billing:    address,
		Items:      items,
		Version:    0,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}
