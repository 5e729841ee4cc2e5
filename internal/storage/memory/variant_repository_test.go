package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func newTestVariant(sku string, qty int32) domain.ProductVariant {
	return domain.ProductVariant{
		SKU:        sku,
		ProductID:  "prod-1",
		Size:       "M",
		Color:      "black",
		Quantity:   qty,
		PriceMinor: 2500,
		IsActive:   true,
	}
}

func TestVariantRepository_ReserveStock(t *testing.T) {
	repo := NewVariantRepository()
	if err := repo.Create(newTestVariant("SKU-1", 5)); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	change, err := repo.ReserveStock("SKU-1", 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if change.Before != 5 || change.After != 2 {
		t.Fatalf("unexpected stock change: %+v", change)
	}

	if _, err := repo.ReserveStock("SKU-1", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	variant, err := repo.Get("SKU-1")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 2 {
		t.Fatalf("failed reserve must not change stock, got %d", variant.Quantity)
	}
}

func TestVariantRepository_ReserveStock_Concurrent(t *testing.T) {
	const (
		stock   = 10
		callers = 50
	)

	repo := NewVariantRepository()
	if err := repo.Create(newTestVariant("SKU-HOT", stock)); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			change, err := repo.ReserveStock("SKU-HOT", 1)
			if err == nil {
				if change.After < 0 {
					t.Errorf("stock went negative: %+v", change)
				}
				succeeded.Add(1)
				return
			}
			if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := succeeded.Load(); got != stock {
		t.Fatalf("expected exactly %d successful reserves, got %d", stock, got)
	}
	variant, err := repo.Get("SKU-HOT")
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Quantity != 0 {
		t.Fatalf("expected zero stock after drain, got %d", variant.Quantity)
	}
}

func TestVariantRepository_ReleaseStock(t *testing.T) {
	repo := NewVariantRepository()
	if err := repo.Create(newTestVariant("SKU-2", 5)); err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if _, err := repo.ReserveStock("SKU-2", 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	change, err := repo.ReleaseStock("SKU-2", 2)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if change.Before != 1 || change.After != 3 {
		t.Fatalf("unexpected stock change: %+v", change)
	}
}

func TestVariantRepository_SavePreservesQuantity(t *testing.T) {
	repo := NewVariantRepository()
	if err := repo.Create(newTestVariant("SKU-3", 7)); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	updated := newTestVariant("SKU-3", 0)
	updated.PriceMinor = 2999
	if err := repo.Save(updated); err != nil {
		t.Fatalf("save: %v", err)
	}

	variant, err := repo.Get("SKU-3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if variant.Quantity != 7 {
		t.Fatalf("save must not change stock, got %d", variant.Quantity)
	}
	if variant.PriceMinor != 2999 {
		t.Fatalf("save must update price, got %d", variant.PriceMinor)
	}
}

func TestVariantRepository_CreateDuplicate(t *testing.T) {
	repo := NewVariantRepository()
	if err := repo.Create(newTestVariant("SKU-4", 1)); err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if err := repo.Create(newTestVariant("SKU-4", 1)); !errors.Is(err, domain.ErrVariantExists) {
		t.Fatalf("expected ErrVariantExists, got %v", err)
	}
}
