package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const returnColumns = `
	id, order_item_id, order_id, user_id, reason, status, qty,
	refund_amount_minor, rma_number, created_at, received_at, processed_at
`

type returnRepository struct {
	db *sql.DB
}

// NewReturnRepository создаёт PostgreSQL-реализацию ReturnRepository.
// Инвариант "не более одной открытой заявки на позицию" дублируется частичным
// уникальным индексом в схеме.
func NewReturnRepository(store *Store) domain.ReturnRepository {
	return &returnRepository{db: store.DB()}
}

func (r *returnRepository) Create(ret domain.Return) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO returns (`+returnColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		ret.ID, ret.OrderItemID, ret.OrderID, ret.UserID, ret.Reason, string(ret.Status),
		ret.Qty, ret.RefundAmountMinor, ret.RMANumber, ret.CreatedAt, ret.ReceivedAt, ret.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReturnAlreadyOpen
		}
		return fmt.Errorf("insert return: %w", err)
	}

	return nil
}

func (r *returnRepository) Get(id string) (domain.Return, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getWhere(ctx, "id = $1", id)
}

func (r *returnRepository) OpenByItem(itemID string) (domain.Return, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getWhere(ctx, "order_item_id = $1 AND status IN ('Requested', 'Received')", itemID)
}

func (r *returnRepository) List(status domain.ReturnStatus, limit int) ([]domain.Return, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT ` + returnColumns + ` FROM returns`
	args := make([]any, 0, 2)
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Return, 0)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate return rows: %w", err)
	}

	return result, nil
}

func (r *returnRepository) Save(ret domain.Return) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE returns
		SET status = $1,
		    received_at = $2,
		    processed_at = $3
		WHERE id = $4
	`,
		string(ret.Status), ret.ReceivedAt, ret.ProcessedAt, ret.ID,
	)
	if err != nil {
		return fmt.Errorf("update return: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReturnNotFound
	}

	return nil
}

func (r *returnRepository) getWhere(ctx context.Context, where string, arg any) (domain.Return, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE `+where, arg)

	ret, err := scanReturn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Return{}, domain.ErrReturnNotFound
		}
		return domain.Return{}, err
	}

	return ret, nil
}

func scanReturn(row rowScanner) (domain.Return, error) {
	var (
		ret         domain.Return
		status      string
		receivedAt  sql.NullTime
		processedAt sql.NullTime
	)

	err := row.Scan(
		&ret.ID, &ret.OrderItemID, &ret.OrderID, &ret.UserID, &ret.Reason, &status,
		&ret.Qty, &ret.RefundAmountMinor, &ret.RMANumber, &ret.CreatedAt, &receivedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Return{}, err
		}
		return domain.Return{}, fmt.Errorf("scan return row: %w", err)
	}

	ret.Status = domain.ReturnStatus(status)
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		ret.ReceivedAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		ret.ProcessedAt = &t
	}

	return ret, nil
}

var _ domain.ReturnRepository = (*returnRepository)(nil)
