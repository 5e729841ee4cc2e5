package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type inventoryLogRepository struct {
	db *sql.DB
}

// NewInventoryLogRepository создаёт PostgreSQL-реализацию InventoryLogRepository.
func NewInventoryLogRepository(store *Store) domain.InventoryLogRepository {
	return &inventoryLogRepository{db: store.DB()}
}

func (r *inventoryLogRepository) Append(entry domain.InventoryLogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_log (
			id, sku, change_type, quantity_before, quantity_after, reason, order_id, occurred
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		entry.ID, entry.SKU, string(entry.ChangeType),
		entry.QuantityBefore, entry.QuantityAfter,
		entry.Reason, entry.OrderID, entry.Occurred,
	); err != nil {
		return fmt.Errorf("append inventory log entry: %w", err)
	}

	return nil
}

// ListBySKU возвращает записи журнала по SKU в хронологическом порядке.
// limit > 0 оставляет последние limit записей.
func (r *inventoryLogRepository) ListBySKU(sku string, limit int) ([]domain.InventoryLogEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, sku, change_type, quantity_before, quantity_after, reason, order_id, occurred
		FROM inventory_log
		WHERE sku = $1
		ORDER BY occurred DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", sku, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("list inventory log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.InventoryLogEntry, 0)
	for rows.Next() {
		var entry domain.InventoryLogEntry
		var changeType string
		if err := rows.Scan(
			&entry.ID, &entry.SKU, &changeType,
			&entry.QuantityBefore, &entry.QuantityAfter,
			&entry.Reason, &entry.OrderID, &entry.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan inventory log entry: %w", err)
		}
		entry.ChangeType = domain.InventoryChangeType(changeType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory log entries: %w", err)
	}

	// Выборка шла новыми вперёд ради LIMIT; наружу отдаём хронологию.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

var _ domain.InventoryLogRepository = (*inventoryLogRepository)(nil)
