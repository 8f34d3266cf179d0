package config

// Governance captures the timelock and threshold knobs that bound how fast
// the controller's per-market collateral-factor change (the pending_CF/UF
// timelock internal/controller enforces) may take effect.
type Governance struct {
	QuorumBPS        uint32
	PassThresholdBPS uint32
	VotingPeriodSecs uint64
}

// OracleDefaults bounds the freshness/deviation tolerances new markets are
// registered with before any per-market override is applied.
type OracleDefaults struct {
	MaxAgeBlocks    uint64
	MaxDeviationBps uint64
}

// EventExport controls the batching of internal/events records to the
// durable sink (sqlite/parquet) cmd/lendingd wires up.
type EventExport struct {
	BatchSize     int
	FlushInterval uint64 // seconds
}

// Global bundles the runtime configuration values ValidateConfig enforces
// across every market the daemon serves.
type Global struct {
	Governance Governance
	Oracle     OracleDefaults
	Events     EventExport
}
