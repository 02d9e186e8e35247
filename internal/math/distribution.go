package math

// Tiered distribution constants: the top tier takes 60% of the pot, the
// remaining ranks take 40%, each split pro-rata by contribution within the
// tier.
const (
	TopTierSize = 10
	TopTierBps  = 6000
	BpsDenom    = 10000
)

// Share is one participant's computed payout.
type Share struct {
	Participant [16]byte // UUID binary
	Amount      int64
}

// RankedContribution is the input to the tiered distribution: ranked order
// is already established by the caller (contribution desc, insertion asc).
type RankedContribution struct {
	Participant  [16]byte
	Contribution int64
}

// ComputeTieredDistribution splits pot across the ranked participants:
// ranks 1..10 share 60% pro-rata by contribution, ranks 11..K share 40%
// pro-rata within their sub-group. Integer remainders from flooring go to
// the first rank of each tier, so the returned shares always sum to pot
// exactly. If the second tier is empty the whole pot goes to the first
// tier, so conservation wins over tier structure.
func ComputeTieredDistribution(pot int64, ranked []RankedContribution) []Share {
	if pot <= 0 || len(ranked) == 0 {
		return nil
	}

	tier1 := ranked
	var tier2 []RankedContribution
	if len(ranked) > TopTierSize {
		tier1 = ranked[:TopTierSize]
		tier2 = ranked[TopTierSize:]
	}

	budget1 := pot
	var budget2 int64
	if len(tier2) > 0 {
		budget1 = MulDiv(pot, TopTierBps, BpsDenom)
		budget2 = pot - budget1
	}

	shares := make([]Share, 0, len(ranked))
	shares = append(shares, proRata(budget1, tier1)...)
	if len(tier2) > 0 {
		shares = append(shares, proRata(budget2, tier2)...)
	}
	return shares
}

// proRata splits budget across the group by contribution weight, flooring
// each share and assigning the accumulated remainder to the first member.
func proRata(budget int64, group []RankedContribution) []Share {
	var total int64
	for _, rc := range group {
		total += rc.Contribution
	}

	shares := make([]Share, len(group))
	var paid int64
	for i, rc := range group {
		var amount int64
		if total > 0 {
			amount = MulDiv(budget, rc.Contribution, total)
		}
		shares[i] = Share{Participant: rc.Participant, Amount: amount}
		paid += amount
	}

	if remainder := budget - paid; remainder > 0 && len(shares) > 0 {
		shares[0].Amount += remainder
	}
	return shares
}
