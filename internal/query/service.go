package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. Current-round
// status is served from the core's lock-free snapshot by the HTTP server;
// this service covers historical rounds, claims, and the leaderboard. All
// responses include as_of_sequence for freshness semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetRound returns one round's projected state.
func (qs *QueryService) GetRound(
	ctx context.Context,
	engine string,
	roundID uint64,
) (*RoundResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT state, pool, threshold, entry_count, winner,
		       total_distributed, total_claimed, recovered
		FROM projections.rounds
		WHERE engine = $1 AND round_id = $2
	`, engine, int64(roundID))

	r := &RoundResponse{
		Engine:       engine,
		RoundID:      roundID,
		AsOfSequence: asOfSeq,
	}
	err = row.Scan(
		&r.State, &r.Pool, &r.Threshold, &r.EntryCount, &r.Winner,
		&r.TotalDistributed, &r.TotalClaimed, &r.Recovered,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetClaims returns a participant's claim records across rounds, newest first.
func (qs *QueryService) GetClaims(
	ctx context.Context,
	participant uuid.UUID,
	limit int,
) ([]ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT engine, round_id, rank, claimable, claimed
		FROM projections.claims
		WHERE participant = $1
		ORDER BY round_id DESC
		LIMIT $2
	`, participant.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []ClaimResponse
	for rows.Next() {
		var c ClaimResponse
		c.Participant = participant
		c.AsOfSequence = asOfSeq
		var roundID int64
		if err := rows.Scan(&c.Engine, &roundID, &c.Rank, &c.Claimable, &c.Claimed); err != nil {
			return nil, err
		}
		c.RoundID = uint64(roundID)
		claims = append(claims, c)
	}

	return claims, rows.Err()
}

// GetClaimable returns one claim record for a participant and round.
func (qs *QueryService) GetClaimable(
	ctx context.Context,
	engine string,
	participant uuid.UUID,
	roundID uint64,
) (*ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT rank, claimable, claimed
		FROM projections.claims
		WHERE engine = $1 AND round_id = $2 AND participant = $3
	`, engine, int64(roundID), participant.String())

	c := &ClaimResponse{
		Participant:  participant,
		Engine:       engine,
		RoundID:      roundID,
		AsOfSequence: asOfSeq,
	}
	err = row.Scan(&c.Rank, &c.Claimable, &c.Claimed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetRanked returns the frozen leaderboard of a distributed LP round.
func (qs *QueryService) GetRanked(
	ctx context.Context,
	roundID uint64,
) ([]RankedResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT rank, participant, contribution, payout
		FROM projections.ranked
		WHERE round_id = $1
		ORDER BY rank ASC
	`, int64(roundID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranked []RankedResponse
	for rows.Next() {
		var r RankedResponse
		r.RoundID = roundID
		r.AsOfSequence = asOfSeq
		var participant string
		if err := rows.Scan(&r.Rank, &participant, &r.Contribution, &r.Payout); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(participant)
		if err != nil {
			return nil, fmt.Errorf("parse participant %q: %w", participant, err)
		}
		r.Participant = id
		ranked = append(ranked, r)
	}

	return ranked, rows.Err()
}

// GetLifetime returns a participant's lifetime contribution total.
func (qs *QueryService) GetLifetime(
	ctx context.Context,
	participant uuid.UUID,
) (*LifetimeResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT total FROM projections.lifetime WHERE participant = $1
	`, participant.String()).Scan(&total)
	if err == sql.ErrNoRows {
		total = 0
	} else if err != nil {
		return nil, err
	}

	return &LifetimeResponse{
		Participant:  participant,
		Total:        total,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetJournalHistory returns journal entries for a participant with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	participant uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("participant:%s:%%", participant)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, engine, amount, journal_type, timestamp
		FROM vault.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Engine, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain and global balance invariants.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM vault.events e1
		LEFT JOIN vault.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Global balance must sum to zero per engine
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT engine, SUM(balance) as total
		FROM projections.balances
		GROUP BY engine
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var engine int16
		var total int64
		if err := balanceRows.Scan(&engine, &total); err != nil {
			return nil, err
		}
		report.UnbalancedEngines = append(report.UnbalancedEngines, UnbalancedEngine{
			Engine:    engine,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedEngines) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
