package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Ledger реализует domain.InventoryLedger поверх VariantRepository.
// Атомарность условного декремента обеспечивает репозиторий; Ledger добавляет
// журнал изменений остатка, метрики и токены резервов для отката.
type Ledger struct {
	variants domain.VariantRepository
	journal  domain.InventoryLogRepository
	logger   *log.Entry
	metrics  *metrics.CoreMetrics
	now      func() time.Time
}

// NewLedger создаёт рабочий экземпляр Ledger.
func NewLedger(
	variants domain.VariantRepository,
	journal domain.InventoryLogRepository,
	logger *log.Entry,
) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{
		variants: variants,
		journal:  journal,
		logger:   logger,
		metrics:  metrics.NewCoreMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve условно уменьшает остаток SKU и возвращает токен резерва.
// При нехватке остатка состояние не меняется и возвращается ErrInsufficientStock.
func (l *Ledger) Reserve(orderID, sku string, qty int32) (domain.Reservation, error) {
	change, err := l.variants.ReserveStock(sku, qty)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			l.metrics.RecordInsufficientStock()
			l.logger.WithFields(log.Fields{
				"order_id": orderID,
				"sku":      sku,
				"qty":      qty,
			}).Warn("reserve rejected: insufficient stock")
		}
		return domain.Reservation{}, err
	}

	reservation := domain.Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		SKU:       sku,
		Qty:       qty,
		CreatedAt: l.now(),
	}

	l.metrics.RecordStockReserved(qty)
	l.appendJournal(domain.InventoryChangeReserve, orderID, sku, change, "stock reserved for checkout")

	l.logger.WithFields(log.Fields{
		"order_id":       orderID,
		"sku":            sku,
		"qty":            qty,
		"reservation_id": reservation.ID,
		"stock_after":    change.After,
	}).Info("stock reserved")

	return reservation, nil
}

// Release атомарно возвращает qty единиц в доступный остаток. Используется
// и для отката резерва при неудачном checkout, и для restock при отмене
// или возврате позиции.
func (l *Ledger) Release(orderID, sku string, qty int32, change domain.InventoryChangeType) error {
	stockChange, err := l.variants.ReleaseStock(sku, qty)
	if err != nil {
		l.logger.WithFields(log.Fields{
			"order_id": orderID,
			"sku":      sku,
			"qty":      qty,
		}).WithError(err).Error("release stock failed")
		return err
	}

	l.metrics.RecordStockReleased(string(change), qty)

	reason := "reservation released"
	if change == domain.InventoryChangeRestock {
		reason = "stock returned after cancel or return"
	}
	l.appendJournal(change, orderID, sku, stockChange, reason)

	l.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"sku":         sku,
		"qty":         qty,
		"change":      change,
		"stock_after": stockChange.After,
	}).Info("stock released")

	return nil
}

// appendJournal пишет запись в журнал остатков. Ошибка журнала не откатывает
// уже применённую мутацию остатка, только логируется.
func (l *Ledger) appendJournal(change domain.InventoryChangeType, orderID, sku string, stockChange domain.StockChange, reason string) {
	entry := domain.InventoryLogEntry{
		ID:             uuid.NewString(),
		SKU:            sku,
		ChangeType:     change,
		QuantityBefore: stockChange.Before,
		QuantityAfter:  stockChange.After,
		Reason:         reason,
		OrderID:        orderID,
		Occurred:       l.now(),
	}
	if err := l.journal.Append(entry); err != nil {
		l.logger.WithFields(log.Fields{
			"sku":    sku,
			"change": change,
		}).WithError(err).Error("append inventory log failed")
	}
}

var _ domain.InventoryLedger = (*Ledger)(nil)
