package config

// returns default flags for the sweeper subcommands
func DefaultSweepFlags() SweepFlags {
	return SweepFlags{
		HandoffMaxAgeHours: 168,
		RetryLimit:         100,
		TouchRetentionDays: 365,
	}
}
