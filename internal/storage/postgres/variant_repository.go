package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type variantRepository struct {
	db *sql.DB
}

// NewVariantRepository создаёт PostgreSQL-реализацию VariantRepository.
// Атомарность ReserveStock обеспечивается условным UPDATE: проверка остатка
// и декремент выполняются одним оператором на стороне базы.
func NewVariantRepository(store *Store) domain.VariantRepository {
	return &variantRepository{db: store.DB()}
}

func (r *variantRepository) Create(variant domain.ProductVariant) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}
	variant.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_variants (
			sku, product_id, size, color, quantity, max_per_customer,
			price_minor, discount_price_minor, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		variant.SKU, variant.ProductID, variant.Size, variant.Color,
		variant.Quantity, variant.MaxPerCustomer,
		variant.PriceMinor, variant.DiscountPriceMinor, variant.IsActive,
		variant.CreatedAt, variant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVariantExists
		}
		return fmt.Errorf("insert product variant: %w", err)
	}

	return nil
}

func (r *variantRepository) Get(sku string) (domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var variant domain.ProductVariant
	err := r.db.QueryRowContext(ctx, `
		SELECT sku, product_id, size, color, quantity, max_per_customer,
		       price_minor, discount_price_minor, is_active, created_at, updated_at
		FROM product_variants
		WHERE sku = $1
	`, sku).Scan(
		&variant.SKU, &variant.ProductID, &variant.Size, &variant.Color,
		&variant.Quantity, &variant.MaxPerCustomer,
		&variant.PriceMinor, &variant.DiscountPriceMinor, &variant.IsActive,
		&variant.CreatedAt, &variant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrVariantNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("select product variant: %w", err)
	}

	return variant, nil
}

// Save обновляет атрибуты варианта. Остаток намеренно не трогается:
// единственные пути его мутации — ReserveStock и ReleaseStock.
func (r *variantRepository) Save(variant domain.ProductVariant) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE product_variants
		SET product_id = $1,
		    size = $2,
		    color = $3,
		    max_per_customer = $4,
		    price_minor = $5,
		    discount_price_minor = $6,
		    is_active = $7,
		    updated_at = $8
		WHERE sku = $9
	`,
		variant.ProductID, variant.Size, variant.Color, variant.MaxPerCustomer,
		variant.PriceMinor, variant.DiscountPriceMinor, variant.IsActive,
		time.Now().UTC(), variant.SKU,
	)
	if err != nil {
		return fmt.Errorf("update product variant: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrVariantNotFound
	}

	return nil
}

func (r *variantRepository) ReserveStock(sku string, qty int32) (domain.StockChange, error) {
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var after int32
	err := r.db.QueryRowContext(ctx, `
		UPDATE product_variants
		SET quantity = quantity - $2,
		    updated_at = NOW()
		WHERE sku = $1
		  AND quantity >= $2
		RETURNING quantity
	`, sku, qty).Scan(&after)
	if err == nil {
		return domain.StockChange{Before: after + qty, After: after}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.StockChange{}, fmt.Errorf("reserve stock: %w", err)
	}

	// UPDATE не сработал: либо SKU нет, либо остатка не хватило.
	if _, getErr := r.Get(sku); getErr != nil {
		return domain.StockChange{}, getErr
	}
	return domain.StockChange{}, domain.ErrInsufficientStock
}

func (r *variantRepository) ReleaseStock(sku string, qty int32) (domain.StockChange, error) {
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var after int32
	err := r.db.QueryRowContext(ctx, `
		UPDATE product_variants
		SET quantity = quantity + $2,
		    updated_at = NOW()
		WHERE sku = $1
		RETURNING quantity
	`, sku, qty).Scan(&after)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockChange{}, domain.ErrVariantNotFound
		}
		return domain.StockChange{}, fmt.Errorf("release stock: %w", err)
	}

	return domain.StockChange{Before: after - qty, After: after}, nil
}

var _ domain.VariantRepository = (*variantRepository)(nil)
