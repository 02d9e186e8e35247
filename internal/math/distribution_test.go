package math_test

import (
	"testing"

	vmath "RewardVault/internal/math"
)

func ranked(contributions ...int64) []vmath.RankedContribution {
	out := make([]vmath.RankedContribution, len(contributions))
	for i, c := range contributions {
		out[i] = vmath.RankedContribution{Contribution: c}
		out[i].Participant[0] = byte(i + 1)
	}
	return out
}

func sumShares(shares []vmath.Share) int64 {
	var total int64
	for _, s := range shares {
		total += s.Amount
	}
	return total
}

func TestTieredDistribution_EmptyInputs(t *testing.T) {
	if got := vmath.ComputeTieredDistribution(0, ranked(100)); got != nil {
		t.Errorf("zero pot should yield no shares, got %v", got)
	}
	if got := vmath.ComputeTieredDistribution(1000, nil); got != nil {
		t.Errorf("no participants should yield no shares, got %v", got)
	}
}

func TestTieredDistribution_SingleParticipantTakesAll(t *testing.T) {
	shares := vmath.ComputeTieredDistribution(1_000_000, ranked(42))
	if len(shares) != 1 {
		t.Fatalf("share count = %d, want 1", len(shares))
	}
	if shares[0].Amount != 1_000_000 {
		t.Errorf("single participant share = %d, want full pot", shares[0].Amount)
	}
}

func TestTieredDistribution_TenOrFewer_WholePotToTopTier(t *testing.T) {
	// With no second tier the 60/40 split does not apply: conservation
	// requires the whole pot to go to the ranks that exist.
	shares := vmath.ComputeTieredDistribution(999, ranked(300, 200, 100))
	if len(shares) != 3 {
		t.Fatalf("share count = %d, want 3", len(shares))
	}
	if got := sumShares(shares); got != 999 {
		t.Errorf("distributed = %d, want 999", got)
	}
	if shares[0].Amount < shares[1].Amount || shares[1].Amount < shares[2].Amount {
		t.Errorf("shares should be non-increasing by rank: %v", shares)
	}
}

func TestTieredDistribution_SixtyFortySplit(t *testing.T) {
	// 12 equal contributors: ranks 1-10 share 60%, ranks 11-12 share 40%.
	contribs := make([]int64, 12)
	for i := range contribs {
		contribs[i] = 1_000
	}
	shares := vmath.ComputeTieredDistribution(10_000, ranked(contribs...))
	if len(shares) != 12 {
		t.Fatalf("share count = %d, want 12", len(shares))
	}

	var tier1, tier2 int64
	for i, s := range shares {
		if i < 10 {
			tier1 += s.Amount
		} else {
			tier2 += s.Amount
		}
	}
	if tier1 != 6_000 {
		t.Errorf("top tier total = %d, want 6000", tier1)
	}
	if tier2 != 4_000 {
		t.Errorf("second tier total = %d, want 4000", tier2)
	}
}

func TestTieredDistribution_RemainderToFirstRankPerTier(t *testing.T) {
	// 100 split across three equal contributors floors to 33 each; the
	// remainder of 1 goes to rank 1 so the pot is conserved exactly.
	shares := vmath.ComputeTieredDistribution(100, ranked(10, 10, 10))
	if got := sumShares(shares); got != 100 {
		t.Fatalf("distributed = %d, want 100", got)
	}
	if shares[0].Amount != 34 || shares[1].Amount != 33 || shares[2].Amount != 33 {
		t.Errorf("shares = %d/%d/%d, want 34/33/33",
			shares[0].Amount, shares[1].Amount, shares[2].Amount)
	}
}

func TestTieredDistribution_ConservationLargeValues(t *testing.T) {
	// Contributions near int64 scale exercise the int128 intermediate path.
	contribs := make([]int64, 60)
	for i := range contribs {
		contribs[i] = (1 << 40) + int64(i)*7_919
	}
	pot := int64(1) << 50

	shares := vmath.ComputeTieredDistribution(pot, ranked(contribs...))
	if len(shares) != 60 {
		t.Fatalf("share count = %d, want 60", len(shares))
	}
	if got := sumShares(shares); got != pot {
		t.Errorf("distributed = %d, want %d", got, pot)
	}
}

func TestMulDiv_RoundsDown(t *testing.T) {
	if got := vmath.MulDiv(10, 1, 3); got != 3 {
		t.Errorf("MulDiv(10,1,3) = %d, want 3", got)
	}
	if got := vmath.MulDiv(1<<40, 6000, 10000); got != (1<<40)*6000/10000 {
		t.Errorf("MulDiv 60%% of 2^40 = %d", got)
	}
}
