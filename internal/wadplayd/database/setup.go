package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetupDatabase opens a connection pool and waits for the server to answer
// a ping, retrying up to attempts times with delay between tries.
func SetupDatabase(ctx context.Context, driver, dsn string, maxOpenConns, attempts int, delay time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if attempts < 1 {
		attempts = 1
	}

	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if i >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	db.Close()
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempts, err)
}
