package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelQuery reports whether the schema has already been created.
const sentinelQuery = "SELECT to_regclass('public.users') IS NOT NULL"

var steps = []migrationStep{
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  id         UUID        PRIMARY KEY,
  name       TEXT        NOT NULL,
  email      TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_users_email",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email));`,
	},
	{
		Name: "create_index_users_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at);`,
	},
	{
		Name: "create_table_products",
		SQL: `CREATE TABLE IF NOT EXISTS products (
  id          UUID        PRIMARY KEY,
  name        TEXT        NOT NULL,
  description TEXT        NOT NULL DEFAULT '',
  price_cents BIGINT      NOT NULL CHECK (price_cents >= 0),
  stock       INTEGER     NOT NULL CHECK (stock >= 0),
  image_key   TEXT        NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_products_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_products_created_at ON products (created_at);`,
	},
	{
		Name: "create_table_orders",
		SQL: `CREATE TABLE IF NOT EXISTS orders (
  id          UUID        PRIMARY KEY,
  user_id     UUID        NOT NULL REFERENCES users (id) ON DELETE RESTRICT,
  product_id  UUID        NOT NULL REFERENCES products (id) ON DELETE RESTRICT,
  quantity    INTEGER     NOT NULL CHECK (quantity > 0),
  total_cents BIGINT      NOT NULL CHECK (total_cents >= 0),
  status      TEXT        NOT NULL CHECK (status IN ('pending', 'paid', 'shipped', 'cancelled')),
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_orders_user_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);`,
	},
	{
		Name: "create_index_orders_product_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_product_id ON orders (product_id);`,
	},
	{
		Name: "create_index_orders_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);`,
	},
	{
		Name: "create_index_orders_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);`,
	},
}

// EnsureMigrated checks if the 'users' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sqlx.DB, logger zerolog.Logger, dbHost string) error {
	start := time.Now()
	l := logger.With().Str("component", "database").Str("db_host", dbHost).Logger()

	l.Info().Str("event", "db_migration_check").Str("status", "starting").Msg("checking schema")

	var exists bool
	if err := db.QueryRowContext(ctx, sentinelQuery).Scan(&exists); err != nil {
		l.Error().
			Str("event", "db_migration_failed").
			Str("status", "error").
			Err(err).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		l.Info().
			Str("event", "db_migration_skip").
			Str("status", "success").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("schema already exists, skipping migration")
		return nil
	}

	l.Info().Str("event", "db_migration_start").Str("status", "in_progress").Int("steps", len(steps)).Msg("applying schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			l.Error().
				Str("event", "db_migration_failed").
				Str("status", "error").
				Str("migration_step", step.Name).
				Err(err).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
				Msg("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		l.Debug().
			Str("event", "db_migration_step").
			Str("status", "success").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Msg("migration step applied")
	}

	l.Info().
		Str("event", "db_migration_success").
		Str("status", "success").
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("schema migrated")

	return nil
}
