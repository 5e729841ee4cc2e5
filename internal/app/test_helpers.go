package app

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// newTestOrder создаёт тестовый заказ для использования в тестах.
func newTestOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         "test-order-1",
		Number:     domain.GenerateOrderNumber(),
		UserID:     "test-user-1",
		Status:     domain.OrderStatusPaid,
		TotalMinor: 1000,
		PaymentRef: "SIMULATED00000001",
		Shipping: domain.Address{
			FullName: "Test User",
			Street:   "1 Test St",
			City:     "Testville",
			State:    "TS",
			ZipCode:  "00001",
			Country:  "US",
		},
		Items: []domain.OrderItem{
			{
				ID:         "item-1",
				OrderID:    "test-order-1",
				SKU:        "SKU-TEST",
				Qty:        1,
				PriceMinor: 1000,
				Status:     domain.ItemStatusPaid,
				CreatedAt:  now,
			},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
