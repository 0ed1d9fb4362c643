package exitcodes

// Exit codes for leave
// Any abort or per-entry failure exits with Failure, like rm(1)
const (
	Success = 0 // Every non-preserved entry was removed
	Failure = 1 // Run aborted during preflight, or at least one entry failed
	Usage   = 2 // Invalid flags or configuration file
)
