package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"RewardVault/internal/projection"
	"RewardVault/internal/testutil"
)

func enginePtr(s string) *string { return &s }

func runWorkerOver(t *testing.T, worker *projection.ProjectionWorker, inputChan chan projection.ProjectionOutput, outputs []projection.ProjectionOutput) {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(context.Background())
	}()

	for _, o := range outputs {
		inputChan <- o
	}
	close(inputChan)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("projection worker: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("projection worker did not exit after channel close")
	}
}

func TestProjectionWorker_RoundLifecycle(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	winner := uuid.NewString()
	inputChan := make(chan projection.ProjectionOutput, 16)
	worker := projection.NewProjectionWorker(db, inputChan)

	outputs := []projection.ProjectionOutput{
		{
			Sequence:  0,
			EventType: "BuyerEntry",
			Engine:    enginePtr("buyer"),
			JournalEntries: []projection.JournalEntry{{
				DebitAccount:  "vault:pool:buyer",
				CreditAccount: "external:fee_router:buyer",
				Engine:        1,
				Amount:        500,
			}},
			Round: &projection.RoundUpdate{
				RoundID: 1, State: "filling", Pool: 500, Threshold: 500, EntryCount: 1,
			},
			Timestamp: 1000,
		},
		{
			Sequence:  1,
			EventType: "BuyerFinalize",
			Engine:    enginePtr("buyer"),
			JournalEntries: []projection.JournalEntry{{
				DebitAccount:  "vault:pending:buyer",
				CreditAccount: "vault:pool:buyer",
				Engine:        1,
				Amount:        500,
			}},
			Round: &projection.RoundUpdate{
				RoundID: 1, State: "distributed", Pool: 500, Threshold: 500,
				EntryCount: 1, Winner: &winner, TotalDistributed: 500,
			},
			Claims: []projection.ClaimUpdate{
				{Participant: winner, RoundID: 1, Rank: 0, Claimable: 500, Claimed: false},
			},
			Timestamp: 2000,
		},
		{
			Sequence:  2,
			EventType: "BuyerClaim",
			Engine:    enginePtr("buyer"),
			Round: &projection.RoundUpdate{
				RoundID: 1, State: "distributed", Pool: 500, Threshold: 500,
				EntryCount: 1, Winner: &winner, TotalDistributed: 500, TotalClaimed: 500,
			},
			Claims: []projection.ClaimUpdate{
				{Participant: winner, RoundID: 1, Rank: 0, Claimable: 0, Claimed: true},
			},
			Timestamp: 3000,
		},
	}
	runWorkerOver(t, worker, inputChan, outputs)

	var state string
	var totalClaimed int64
	err := db.QueryRow(`
		SELECT state, total_claimed FROM projections.rounds
		WHERE engine = 'buyer' AND round_id = 1
	`).Scan(&state, &totalClaimed)
	if err != nil {
		t.Fatalf("read round projection: %v", err)
	}
	if state != "distributed" || totalClaimed != 500 {
		t.Errorf("round state=%s claimed=%d, want distributed/500", state, totalClaimed)
	}

	// The claim upsert composes the finalize insert with the claim flip:
	// claimed sticks to true and rank never regresses.
	var claimed bool
	var claimable int64
	err = db.QueryRow(`
		SELECT claimed, claimable FROM projections.claims
		WHERE engine = 'buyer' AND round_id = 1 AND participant = $1
	`, winner).Scan(&claimed, &claimable)
	if err != nil {
		t.Fatalf("read claim projection: %v", err)
	}
	if !claimed || claimable != 0 {
		t.Errorf("claim claimed=%v claimable=%d, want true/0", claimed, claimable)
	}

	// Pool balance nets to zero after distribution
	var poolBalance int64
	err = db.QueryRow(`
		SELECT balance FROM projections.balances WHERE account_path = 'vault:pool:buyer'
	`).Scan(&poolBalance)
	if err != nil {
		t.Fatalf("read balance projection: %v", err)
	}
	if poolBalance != 0 {
		t.Errorf("pool balance = %d, want 0", poolBalance)
	}

	var watermark int64
	err = db.QueryRow(`
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&watermark)
	if err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	if watermark != 2 {
		t.Errorf("watermark = %d, want 2", watermark)
	}

	// Claim landed in the in-memory payout history
	history := worker.History().QueryByParticipant(winner, 10)
	if len(history) != 1 {
		t.Fatalf("payout history entries = %d, want 1", len(history))
	}
	if history[0].RoundID != 1 {
		t.Errorf("history round = %d, want 1", history[0].RoundID)
	}
}

func TestProjectionWorker_SweepClearsUnclaimed(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	claimedBy := uuid.NewString()
	expiredBy := uuid.NewString()
	inputChan := make(chan projection.ProjectionOutput, 16)
	worker := projection.NewProjectionWorker(db, inputChan)

	outputs := []projection.ProjectionOutput{
		{
			Sequence:  0,
			EventType: "LPFinalize",
			Engine:    enginePtr("lp"),
			Round: &projection.RoundUpdate{
				RoundID: 3, State: "distributed", Pool: 1000, Threshold: 1000, TotalDistributed: 1000,
			},
			Claims: []projection.ClaimUpdate{
				{Participant: claimedBy, RoundID: 3, Rank: 1, Claimable: 600},
				{Participant: expiredBy, RoundID: 3, Rank: 2, Claimable: 400},
			},
			Ranked: []projection.RankedUpdate{
				{Rank: 1, Participant: claimedBy, Contribution: 900, Payout: 600},
				{Rank: 2, Participant: expiredBy, Contribution: 500, Payout: 400},
			},
			Timestamp: 1000,
		},
		{
			Sequence:  1,
			EventType: "LPClaim",
			Engine:    enginePtr("lp"),
			Claims: []projection.ClaimUpdate{
				{Participant: claimedBy, RoundID: 3, Rank: 1, Claimable: 0, Claimed: true},
			},
			Timestamp: 2000,
		},
		{
			Sequence:  2,
			EventType: "LPSweep",
			Engine:    enginePtr("lp"),
			Round: &projection.RoundUpdate{
				RoundID: 3, State: "swept", Pool: 1000, Threshold: 1000,
				TotalDistributed: 1000, TotalClaimed: 600, Recovered: 400,
			},
			Timestamp: 3000,
		},
	}
	runWorkerOver(t, worker, inputChan, outputs)

	// The sweep zeroes the expired unclaimed record and leaves the claimed
	// one untouched.
	var claimable int64
	var claimed bool
	err := db.QueryRow(`
		SELECT claimable, claimed FROM projections.claims
		WHERE engine = 'lp' AND round_id = 3 AND participant = $1
	`, expiredBy).Scan(&claimable, &claimed)
	if err != nil {
		t.Fatalf("read expired claim: %v", err)
	}
	if claimable != 0 || claimed {
		t.Errorf("expired claim claimable=%d claimed=%v, want 0/false", claimable, claimed)
	}

	err = db.QueryRow(`
		SELECT claimed FROM projections.claims
		WHERE engine = 'lp' AND round_id = 3 AND participant = $1
	`, claimedBy).Scan(&claimed)
	if err != nil {
		t.Fatalf("read settled claim: %v", err)
	}
	if !claimed {
		t.Error("settled claim should stay claimed after sweep")
	}

	// Ranked table froze both rows
	var rankedCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM projections.ranked WHERE round_id = 3`).Scan(&rankedCount); err != nil {
		t.Fatalf("count ranked: %v", err)
	}
	if rankedCount != 2 {
		t.Errorf("ranked rows = %d, want 2", rankedCount)
	}
}
