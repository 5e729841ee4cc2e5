package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) Create(coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}

	var expiresAt any
	if !coupon.ExpiresAt.IsZero() {
		expiresAt = coupon.ExpiresAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (
			code, type, amount_minor, percent_bp, min_order_minor,
			expires_at, max_uses, times_used, is_active, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		coupon.Code, string(coupon.Type), coupon.AmountMinor, coupon.PercentBP,
		coupon.MinOrderMinor, expiresAt, coupon.MaxUses, coupon.TimesUsed,
		coupon.IsActive, coupon.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCouponExists
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	return nil
}

func (r *couponRepository) GetByCode(code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		coupon     domain.Coupon
		couponType string
		expiresAt  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT code, type, amount_minor, percent_bp, min_order_minor,
		       expires_at, max_uses, times_used, is_active, created_at
		FROM coupons
		WHERE code = $1
	`, code).Scan(
		&coupon.Code, &couponType, &coupon.AmountMinor, &coupon.PercentBP,
		&coupon.MinOrderMinor, &expiresAt, &coupon.MaxUses, &coupon.TimesUsed,
		&coupon.IsActive, &coupon.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}

	coupon.Type = domain.CouponType(couponType)
	if expiresAt.Valid {
		coupon.ExpiresAt = expiresAt.Time.UTC()
	}

	return coupon, nil
}

func (r *couponRepository) Save(coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var expiresAt any
	if !coupon.ExpiresAt.IsZero() {
		expiresAt = coupon.ExpiresAt
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET type = $1,
		    amount_minor = $2,
		    percent_bp = $3,
		    min_order_minor = $4,
		    expires_at = $5,
		    max_uses = $6,
		    times_used = $7,
		    is_active = $8
		WHERE code = $9
	`,
		string(coupon.Type), coupon.AmountMinor, coupon.PercentBP, coupon.MinOrderMinor,
		expiresAt, coupon.MaxUses, coupon.TimesUsed, coupon.IsActive, coupon.Code,
	)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCouponNotFound
	}

	return nil
}

func (r *couponRepository) RecordUsage(usage domain.CouponUsage) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if usage.UsedAt.IsZero() {
		usage.UsedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupon_usages (user_id, code, used_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, code) DO NOTHING
	`, usage.UserID, usage.Code, usage.UsedAt)
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}

	return nil
}

func (r *couponRepository) HasUsage(userID, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM coupon_usages WHERE user_id = $1 AND code = $2
		)
	`, userID, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check coupon usage: %w", err)
	}

	return exists, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
