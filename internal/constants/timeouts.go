package constants

import "time"

// Shared duration vocabulary for timeouts and polling.
const (
	Duration100Milliseconds = 100 * time.Millisecond
	Duration2Seconds        = 2 * time.Second
	Duration5Seconds        = 5 * time.Second
	Duration10Seconds       = 10 * time.Second
)

// Daemon-side timeouts.
const (
	ServiceShutdownTimeout = Duration5Seconds
	JournalOpTimeout       = Duration5Seconds
	PageCommandTimeout     = Duration5Seconds
)

// CLI-side timeouts.
const (
	CLIRequestTimeout   = Duration10Seconds
	CLIProbeTimeout     = Duration2Seconds
	CLIStopPollInterval = Duration100Milliseconds
	CLIStopWaitTimeout  = Duration5Seconds
)
