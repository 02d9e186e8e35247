package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	Engine         *string
	JournalEntries []JournalEntry
	Round          *RoundUpdate
	Claims         []ClaimUpdate
	Ranked         []RankedUpdate
	Lifetime       *LifetimeUpdate
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	Engine        int16
	Amount        int64
	JournalType   int32
}

// RoundUpdate carries the changed round's snapshot.
type RoundUpdate struct {
	RoundID          uint64
	State            string
	Pool             int64
	Threshold        int64
	EntryCount       int
	Winner           *string
	TotalDistributed int64
	TotalClaimed     int64
	Recovered        int64
}

// ClaimUpdate carries one participant's claim record change.
type ClaimUpdate struct {
	Participant string
	RoundID     uint64
	Rank        int
	Claimable   int64
	Claimed     bool
}

// RankedUpdate carries one frozen leaderboard row at finalize.
type RankedUpdate struct {
	Rank         int
	Participant  string
	Contribution int64
	Payout       int64
}

// LifetimeUpdate carries a participant's new lifetime contribution total.
type LifetimeUpdate struct {
	Participant string
	Total       int64
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	history   *PayoutHistoryProjection
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		history:   NewPayoutHistoryProjection(),
	}
}

// History exposes the in-memory payout history for query serving.
func (pw *ProjectionWorker) History() *PayoutHistoryProjection {
	return pw.history
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue: projections are eventually consistent and can
				// be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	engine := ""
	if output.Engine != nil {
		engine = *output.Engine
	}

	// Update balance projections from journal entries
	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Round != nil {
		if err := pw.updateRoundProjection(ctx, tx, engine, output); err != nil {
			return fmt.Errorf("round projection: %w", err)
		}
	}

	for _, c := range output.Claims {
		if err := pw.updateClaimProjection(ctx, tx, engine, c, output.Sequence); err != nil {
			return fmt.Errorf("claim projection: %w", err)
		}
		if c.Claimed {
			pw.history.AddEntry(PayoutHistoryEntry{
				Participant: c.Participant,
				Engine:      engine,
				RoundID:     c.RoundID,
				Rank:        c.Rank,
				Sequence:    output.Sequence,
				Timestamp:   output.Timestamp,
			})
		}
	}

	for _, r := range output.Ranked {
		if err := pw.updateRankedProjection(ctx, tx, output.Round, r, output.Sequence); err != nil {
			return fmt.Errorf("ranked projection: %w", err)
		}
	}

	if output.Lifetime != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.lifetime (participant, total, last_sequence)
			VALUES ($1, $2, $3)
			ON CONFLICT (participant)
			DO UPDATE SET total = EXCLUDED.total, last_sequence = EXCLUDED.last_sequence
		`, output.Lifetime.Participant, output.Lifetime.Total, output.Sequence); err != nil {
			return fmt.Errorf("lifetime projection: %w", err)
		}
	}

	// Sweeps zero every unclaimed record of the swept round. The change set
	// carries only the round, so the claim rows are cleared here.
	if output.EventType == "BuyerSweep" || output.EventType == "LPSweep" {
		if output.Round != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE projections.claims
				SET claimable = 0, last_sequence = $3
				WHERE engine = $1 AND round_id = $2 AND claimed = FALSE
			`, engine, int64(output.Round.RoundID), output.Sequence); err != nil {
				return fmt.Errorf("sweep claim clear: %w", err)
			}
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	// Debit account: balance increases, matching the in-memory ledger
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, engine, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.Engine, j.Amount, seq); err != nil {
		return err
	}

	// Credit account: balance decreases
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, engine, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.Engine, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) updateRoundProjection(ctx context.Context, tx *sql.Tx, engine string, output ProjectionOutput) error {
	r := output.Round
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.rounds
			(engine, round_id, state, pool, threshold, entry_count, winner,
			 total_distributed, total_claimed, recovered, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (engine, round_id)
		DO UPDATE SET
			state = EXCLUDED.state,
			pool = EXCLUDED.pool,
			entry_count = EXCLUDED.entry_count,
			winner = EXCLUDED.winner,
			total_distributed = EXCLUDED.total_distributed,
			total_claimed = EXCLUDED.total_claimed,
			recovered = EXCLUDED.recovered,
			last_sequence = EXCLUDED.last_sequence
	`, engine, int64(r.RoundID), r.State, r.Pool, r.Threshold, r.EntryCount,
		r.Winner, r.TotalDistributed, r.TotalClaimed, r.Recovered, output.Sequence)
	return err
}

func (pw *ProjectionWorker) updateClaimProjection(ctx context.Context, tx *sql.Tx, engine string, c ClaimUpdate, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.claims
			(engine, round_id, participant, rank, claimable, claimed, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (engine, round_id, participant)
		DO UPDATE SET
			claimable = EXCLUDED.claimable,
			claimed = projections.claims.claimed OR EXCLUDED.claimed,
			rank = GREATEST(projections.claims.rank, EXCLUDED.rank),
			last_sequence = EXCLUDED.last_sequence
	`, engine, int64(c.RoundID), c.Participant, c.Rank, c.Claimable, c.Claimed, seq)
	return err
}

func (pw *ProjectionWorker) updateRankedProjection(ctx context.Context, tx *sql.Tx, round *RoundUpdate, r RankedUpdate, seq int64) error {
	if round == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.ranked
			(round_id, rank, participant, contribution, payout, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (round_id, rank)
		DO UPDATE SET
			participant = EXCLUDED.participant,
			contribution = EXCLUDED.contribution,
			payout = EXCLUDED.payout,
			last_sequence = EXCLUDED.last_sequence
	`, int64(round.RoundID), r.Rank, r.Participant, r.Contribution, r.Payout, seq)
	return err
}

// RebuildProjections rebuilds the balance projection from the event log.
// Round, claim, ranked, and lifetime projections rebuild by replaying the
// core and re-running the projection worker over its outputs.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.rounds`,
		`TRUNCATE projections.claims`,
		`TRUNCATE projections.ranked`,
		`TRUNCATE projections.lifetime`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild balances from journal entries. Debits increase an account,
	// credits decrease it, matching the in-memory ledger.
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, engine, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			MAX(engine) AS engine,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM vault.journal
		GROUP BY debit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Subtract credits
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, engine, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			MAX(engine) AS engine,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM vault.journal
		GROUP BY credit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
