// Package postgres implements the cycle journal using PostgreSQL
package postgres

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/wrale/wrale-adplay/internal/wadplayd/database"
	"github.com/wrale/wrale-adplay/internal/wadplayd/journal"
)

// Repository implements journal.Journal
type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewRepository creates a PostgreSQL journal. The playout_journal table
// must exist; see the migrations package.
func NewRepository(db *sql.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

var journalColumns = []string{
	"cycle_id", "screen_id", "identity_source", "offer_id", "deal_id",
	"status", "result", "completion_rate", "confirmed",
	"started_at", "finished_at", "error",
}

var upsertEntry = database.GenerateInsertQuery("playout_journal", journalColumns) + `
	ON CONFLICT (cycle_id) DO UPDATE SET
		status = EXCLUDED.status,
		result = EXCLUDED.result,
		deal_id = EXCLUDED.deal_id,
		completion_rate = EXCLUDED.completion_rate,
		confirmed = EXCLUDED.confirmed,
		finished_at = EXCLUDED.finished_at,
		error = EXCLUDED.error`

// Record implements journal.Journal
func (r *Repository) Record(ctx context.Context, e journal.Entry) error {
	const op = "JournalRepository.Record"

	err := database.RunInTx(ctx, r.db, nil, func(tx *database.Tx) error {
		_, err := tx.ExecContext(ctx, upsertEntry,
			e.CycleID,
			e.ScreenID,
			e.IdentitySource,
			e.OfferID,
			e.DealID,
			e.Status,
			e.Result,
			e.CompletionRate,
			e.Confirmed,
			e.StartedAt,
			e.FinishedAt,
			e.Error,
		)
		return err
	})
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("cycleID", e.CycleID.String()).
			Str("operation", op).
			Msg("failed to record cycle")
		return database.MapError(err, op)
	}

	r.logger.Debug().
		Str("cycleID", e.CycleID.String()).
		Str("result", e.Result).
		Msg("cycle recorded")
	return nil
}

// Recent implements journal.Journal
func (r *Repository) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	const op = "JournalRepository.Recent"

	if limit <= 0 {
		limit = journal.DefaultMemorySize
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			cycle_id, screen_id, identity_source, offer_id, deal_id,
			status, result, completion_rate, confirmed,
			started_at, finished_at, error
		FROM playout_journal
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, database.MapError(err, op)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(
			&e.CycleID,
			&e.ScreenID,
			&e.IdentitySource,
			&e.OfferID,
			&e.DealID,
			&e.Status,
			&e.Result,
			&e.CompletionRate,
			&e.Confirmed,
			&e.StartedAt,
			&e.FinishedAt,
			&e.Error,
		); err != nil {
			return nil, database.MapError(err, op)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapError(err, op)
	}

	return entries, nil
}
