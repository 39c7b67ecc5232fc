package database

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apmdemo/internal/config"
)

func TestBuildPostgresDSN(t *testing.T) {
	base := config.DatabaseConfig{Host: "db", Port: "5432", User: "app", Name: "apmdemo"}
	with := func(mod func(c *config.DatabaseConfig)) config.DatabaseConfig {
		c := base
		mod(&c)
		return c
	}

	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    string
		wantErr bool
	}{
		{"minimal", base, "postgres://app@db:5432/apmdemo", false},
		{"password and sslmode", with(func(c *config.DatabaseConfig) { c.Password = "secret"; c.SSLMode = "require" }),
			"postgres://app:secret@db:5432/apmdemo?sslmode=require", false},
		{"password is escaped", with(func(c *config.DatabaseConfig) { c.Password = "p@ss/word" }),
			"postgres://app:p%40ss%2Fword@db:5432/apmdemo", false},
		{"missing host", with(func(c *config.DatabaseConfig) { c.Host = "" }), "", true},
		{"missing port", with(func(c *config.DatabaseConfig) { c.Port = "" }), "", true},
		{"missing user", with(func(c *config.DatabaseConfig) { c.User = "" }), "", true},
		{"missing name", with(func(c *config.DatabaseConfig) { c.Name = "" }), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPostgresDSN(tt.cfg)
			if tt.wantErr {
				assert.ErrorContains(t, err, "host, port, user, and name are required")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// stubOpen makes NewPostgres use db and records what it was asked to open.
func stubOpen(t *testing.T, db *sql.DB, openErr error) (driver, dsn *string) {
	t.Helper()
	var gotDriver, gotDSN string
	orig := sqlOpen
	sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dataSourceName
		return db, openErr
	}
	t.Cleanup(func() { sqlOpen = orig })
	return &gotDriver, &gotDSN
}

func TestNewPostgres(t *testing.T) {
	conf := config.DatabaseConfig{
		Host:               "db",
		Port:               "5432",
		User:               "app",
		Password:           "secret",
		Name:               "apmdemo",
		SSLMode:            "disable",
		MaxOpenConns:       12,
		MaxIdleConns:       4,
		ConnMaxLifetimeSec: 60,
	}

	t.Run("opens a traced pool and returns sqlx with postgres binds", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		driver, dsn := stubOpen(t, db, nil)
		mock.ExpectPing()

		got, err := NewPostgres(conf)

		require.NoError(t, err)
		assert.NotEqual(t, DriverName, *driver, "the wrapped otelsql driver must be opened")
		assert.Equal(t, "postgres://app:secret@db:5432/apmdemo?sslmode=disable", *dsn)
		assert.Equal(t, DriverName, got.DriverName())
		assert.Equal(t, "SELECT * FROM users WHERE id = $1 AND email = $2", got.Rebind("SELECT * FROM users WHERE id = ? AND email = ?"))
		assert.Equal(t, 12, got.Stats().MaxOpenConnections)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero pool settings keep database/sql defaults", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		stubOpen(t, db, nil)
		mock.ExpectPing()

		c := conf
		c.MaxOpenConns, c.MaxIdleConns, c.ConnMaxLifetimeSec = 0, 0, 0
		got, err := NewPostgres(c)

		require.NoError(t, err)
		assert.Equal(t, 0, got.Stats().MaxOpenConnections)
	})

	t.Run("open error", func(t *testing.T) {
		stubOpen(t, nil, errors.New("unknown driver"))

		got, err := NewPostgres(conf)

		assert.ErrorContains(t, err, "sql open: unknown driver")
		assert.Nil(t, got)
	})

	t.Run("ping error closes the pool", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		stubOpen(t, db, nil)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		got, err := NewPostgres(conf)

		assert.ErrorContains(t, err, "db ping: connection refused")
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.EqualError(t, db.Ping(), "sql: database is closed")
	})

	t.Run("invalid config never opens", func(t *testing.T) {
		driver, _ := stubOpen(t, nil, errors.New("must not be called"))

		got, err := NewPostgres(config.DatabaseConfig{})

		assert.Error(t, err)
		assert.Nil(t, got)
		assert.Empty(t, *driver)
	})
}
