package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

const storageCheckTimeout = 2 * time.Second

// runtimeDependencies — репозитории, собранные под выбранный драйвер
// хранилища, плюс сопутствующий health checker и функция закрытия.
type runtimeDependencies struct {
	orders          domain.OrderRepository
	variants        domain.VariantRepository
	returns         domain.ReturnRepository
	coupons         domain.CouponRepository
	outboxRepo      domain.OutboxRepository
	inventoryLog    domain.InventoryLogRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies выбирает реализацию хранилища по конфигурации.
// Пустой драйвер трактуется как memory.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			orders:          memory.NewOrderRepository(),
			variants:        memory.NewVariantRepository(),
			returns:         memory.NewReturnRepository(),
			coupons:         memory.NewCouponRepository(),
			outboxRepo:      memory.NewOutboxRepository(),
			inventoryLog:    memory.NewInventoryLogRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func() error {
				return nil
			}),
			closeFn: func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return &runtimeDependencies{
			orders:          postgres.NewOrderRepository(store),
			variants:        postgres.NewVariantRepository(store),
			returns:         postgres.NewReturnRepository(store),
			coupons:         postgres.NewCouponRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			inventoryLog:    postgres.NewInventoryLogRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", func() error {
				checkCtx, cancel := context.WithTimeout(context.Background(), storageCheckTimeout)
				defer cancel()
				return store.Ping(checkCtx)
			}),
			closeFn: store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
