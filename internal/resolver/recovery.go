package resolver

import "time"

// recoveryDelays is indexed by attempt number; entries past the end use the
// last value.
var recoveryDelays = []time.Duration{
	24 * time.Hour,
	3 * 24 * time.Hour,
	7 * 24 * time.Hour,
}

// RecoveryDelay returns how long an entry rests in unavailable/failed before
// the recovery scheduler returns it to pending, based on how many attempts
// it has consumed.
func RecoveryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(recoveryDelays) {
		attempt = len(recoveryDelays)
	}
	return recoveryDelays[attempt-1]
}
