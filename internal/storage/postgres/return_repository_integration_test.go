package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestReturnRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewReturnRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	ret := domain.Return{
		ID:                "ret-1",
		OrderItemID:       "item-1",
		OrderID:           "order-1",
		UserID:            "user-1",
		Reason:            "defective",
		Status:            domain.ReturnStatusRequested,
		Qty:               2,
		RefundAmountMinor: 5000,
		RMANumber:         domain.GenerateRMANumber(),
		CreatedAt:         now,
	}

	if err := repo.Create(ret); err != nil {
		t.Fatalf("create return: %v", err)
	}

	got, err := repo.Get("ret-1")
	if err != nil {
		t.Fatalf("get return: %v", err)
	}
	if got.Status != domain.ReturnStatusRequested || got.Qty != 2 || got.RefundAmountMinor != 5000 {
		t.Fatalf("unexpected return payload: %+v", got)
	}
	if got.ReceivedAt != nil || got.ProcessedAt != nil {
		t.Fatalf("timestamps must start empty: %+v", got)
	}

	open, err := repo.OpenByItem("item-1")
	if err != nil {
		t.Fatalf("open by item: %v", err)
	}
	if open.ID != "ret-1" {
		t.Fatalf("expected ret-1, got %s", open.ID)
	}

	if err := got.Receive(now.Add(time.Minute)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := got.Resolve(domain.ReturnActionRefund, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := repo.Save(got); err != nil {
		t.Fatalf("save return: %v", err)
	}

	saved, err := repo.Get("ret-1")
	if err != nil {
		t.Fatalf("get saved return: %v", err)
	}
	if saved.Status != domain.ReturnStatusRefunded {
		t.Fatalf("expected Refunded, got %s", saved.Status)
	}
	if saved.ReceivedAt == nil || saved.ProcessedAt == nil {
		t.Fatalf("timestamps must persist: %+v", saved)
	}

	// Закрытая заявка больше не числится открытой по позиции.
	if _, err := repo.OpenByItem("item-1"); !errors.Is(err, domain.ErrReturnNotFound) {
		t.Fatalf("expected ErrReturnNotFound for closed return, got %v", err)
	}
}

func TestReturnRepository_PostgresOpenUniqueness(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewReturnRepository(store)

	now := time.Now().UTC()
	first := domain.Return{
		ID: "ret-uniq-1", OrderItemID: "item-uniq", OrderID: "order-1", UserID: "user-1",
		Reason: "wrong size", Status: domain.ReturnStatusRequested, Qty: 1,
		RMANumber: domain.GenerateRMANumber(), CreatedAt: now,
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first return: %v", err)
	}

	second := first
	second.ID = "ret-uniq-2"
	second.RMANumber = domain.GenerateRMANumber()
	if err := repo.Create(second); !errors.Is(err, domain.ErrReturnAlreadyOpen) {
		t.Fatalf("expected ErrReturnAlreadyOpen, got %v", err)
	}
}

func TestReturnRepository_PostgresList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewReturnRepository(store)

	now := time.Now().UTC()
	statuses := []domain.ReturnStatus{
		domain.ReturnStatusRequested,
		domain.ReturnStatusDenied,
		domain.ReturnStatusRefunded,
	}
	for i, status := range statuses {
		ret := domain.Return{
			ID:          "ret-list-" + string(rune('a'+i)),
			OrderItemID: "item-list-" + string(rune('a'+i)),
			OrderID:     "order-1",
			UserID:      "user-1",
			Reason:      "test",
			Status:      status,
			Qty:         1,
			RMANumber:   domain.GenerateRMANumber(),
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ret); err != nil {
			t.Fatalf("create return %d: %v", i, err)
		}
	}

	all, err := repo.List("", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 returns, got %d", len(all))
	}
	// Новые первыми.
	if all[0].Status != domain.ReturnStatusRefunded {
		t.Fatalf("expected newest first, got %+v", all[0])
	}

	denied, err := repo.List(domain.ReturnStatusDenied, 10)
	if err != nil {
		t.Fatalf("list denied: %v", err)
	}
	if len(denied) != 1 || denied[0].Status != domain.ReturnStatusDenied {
		t.Fatalf("unexpected filtered list: %+v", denied)
	}
}
