package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"drive-csv-ingest/config"
	"drive-csv-ingest/models"
	"drive-csv-ingest/utils"
)

// PostgresStore persists listings into the cars table through bun.
type PostgresStore struct {
	db     *bun.DB
	logger *utils.Logger
}

// OpenSQL opens a database/sql handle with the driver named in cfg.
func OpenSQL(cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case config.DriverPGDriver:
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN()))), nil
	case config.DriverPGX:
		return sql.Open("pgx", cfg.DSN())
	default:
		return sql.Open("postgres", cfg.DSN())
	}
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to answer,
// creates the schema when cfg.AutoMigrate is set, and returns a ready store.
func NewPostgresStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*PostgresStore, error) {
	sqldb, err := OpenSQL(cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),

		// BUNDEBUG=1 logs failed queries
		// BUNDEBUG=2 logs all queries
		bundebug.FromEnv("BUNDEBUG")))

	ping := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 2 * time.Second, Logger: logger}
	if err := ping.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	ps := &PostgresStore{db: db, logger: logger}
	if cfg.AutoMigrate {
		if err := ps.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return ps, nil
}

var carIndexes = []string{
	`CREATE INDEX IF NOT EXISTS cars_uuid_index ON cars(uuid)`,
	`CREATE INDEX IF NOT EXISTS cars_make_index ON cars(make)`,
	`CREATE INDEX IF NOT EXISTS cars_model_index ON cars(model)`,
	`CREATE INDEX IF NOT EXISTS cars_posted_on_index ON cars(posted_on)`,
	`CREATE INDEX IF NOT EXISTS cars_year_index ON cars(year)`,
	`CREATE INDEX IF NOT EXISTS cars_price_index ON cars(price)`,
	`CREATE INDEX IF NOT EXISTS cars_kilometers_index ON cars(kilometers)`,
	`CREATE INDEX IF NOT EXISTS cars_fuel_type_index ON cars(fuel_type)`,
	`CREATE INDEX IF NOT EXISTS cars_body_type_index ON cars(body_type)`,
	`CREATE INDEX IF NOT EXISTS cars_location_index ON cars(location)`,
	`CREATE INDEX IF NOT EXISTS cars_make_model_index ON cars(make, model)`,
	`CREATE INDEX IF NOT EXISTS cars_price_year_index ON cars(price, year)`,
	`CREATE INDEX IF NOT EXISTS cars_body_type_fuel_type_index ON cars(body_type, fuel_type)`,
}

// Migrate creates the cars table and its indexes when they do not exist.
func (ps *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := ps.db.NewCreateTable().
		Model((*models.CarListing)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	for _, stmt := range carIndexes {
		if _, err := ps.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Begin opens a batch transaction.
func (ps *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx bun.Tx
}

// InsertIgnore inserts listing unless its ad_id is already stored.
func (t *postgresTx) InsertIgnore(ctx context.Context, listing *models.CarListing) (bool, error) {
	res, err := t.tx.NewInsert().
		Model(listing).
		On("CONFLICT (ad_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *postgresTx) Commit() error   { return t.tx.Commit() }
func (t *postgresTx) Rollback() error { return t.tx.Rollback() }

// Count returns the number of rows in the cars table.
func (ps *PostgresStore) Count(ctx context.Context) (int, error) {
	n, err := ps.db.NewSelect().Model((*models.CarListing)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// Stats returns the table size and the most common makes.
func (ps *PostgresStore) Stats(ctx context.Context, topN int) (*models.TableStats, error) {
	total, err := ps.Count(ctx)
	if err != nil {
		return nil, err
	}

	var makes []models.MakeCount
	err = ps.db.NewSelect().
		Model((*models.CarListing)(nil)).
		ColumnExpr("make").
		ColumnExpr("COUNT(*) AS count").
		Where("make IS NOT NULL").
		Group("make").
		OrderExpr("count DESC, make ASC").
		Limit(topN).
		Scan(ctx, &makes)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats: %w", err)
	}

	return &models.TableStats{Total: total, TopMakes: makes}, nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
