package config

import "fmt"

var (
	MinVotingPeriodSeconds = uint64(3600)
)

// ValidateConfig checks the knobs this daemon actually reads: the
// governance timelock bounding collateral-factor changes, the oracle
// freshness/deviation defaults new markets inherit, and the event-export
// batching parameters.
func ValidateConfig(g Global) error {
	if g.Governance.QuorumBPS < g.Governance.PassThresholdBPS {
		return fmt.Errorf("governance: quorum_bps < pass_threshold_bps")
	}
	if g.Governance.VotingPeriodSecs < MinVotingPeriodSeconds {
		return fmt.Errorf("governance: voting_period_seconds too small")
	}
	if g.Oracle.MaxAgeBlocks == 0 {
		return fmt.Errorf("oracle: max_age_blocks must be positive")
	}
	if g.Oracle.MaxDeviationBps == 0 || g.Oracle.MaxDeviationBps > 10_000 {
		return fmt.Errorf("oracle: max_deviation_bps must be in (0, 10000]")
	}
	if g.Events.BatchSize <= 0 {
		return fmt.Errorf("events: batch_size must be positive")
	}
	return nil
}
