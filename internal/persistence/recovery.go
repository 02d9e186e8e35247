package persistence

import (
	"context"
	"database/sql"
)

// RecoveryLoader reads the event log back for startup replay. Recovery is
// replay-only: the engines rebuild all round, registry, and ranking state by
// reprocessing the log from sequence zero, so no state snapshot is stored.
type RecoveryLoader struct {
	db *sql.DB
}

func NewRecoveryLoader(db *sql.DB) *RecoveryLoader {
	return &RecoveryLoader{db: db}
}

// LoadEventsFrom loads events from a given sequence for replay, in sequence
// order. Callers page through the log with repeated calls.
func (rl *RecoveryLoader) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := rl.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, engine, partition, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM vault.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Engine, &e.Partition,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (rl *RecoveryLoader) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := rl.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM vault.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}

// LoadSequenceState returns the next expected source sequence per partition,
// derived from the highest logged source sequence. Rejected events are not
// logged but do consume feed sequence numbers, so the feed cursor may sit
// ahead of this; the validator treats that as a gap only for applied events.
func (rl *RecoveryLoader) LoadSequenceState(ctx context.Context) (map[string]int64, error) {
	rows, err := rl.db.QueryContext(ctx, `
		SELECT partition, MAX(source_sequence)
		FROM vault.events
		GROUP BY partition
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	state := make(map[string]int64)
	for rows.Next() {
		var partition string
		var maxSeq int64
		if err := rows.Scan(&partition, &maxSeq); err != nil {
			return nil, err
		}
		state[partition] = maxSeq + 1
	}

	return state, rows.Err()
}
