package vault

import "time"

// KDFParams configures Argon2id hardness values.
type KDFParams struct {
	MemoryMB uint32 `json:"memory_mb"`
	Time     uint32 `json:"time"`
	Threads  uint8  `json:"threads"`
	KeyLen   uint32 `json:"key_len"`
}

// DefaultKDFParams returns defaults sized for phones. 64 MiB keeps the
// derivation inside Android's per-app memory budget while still making a
// sweep of the 10^6 PIN space expensive.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryMB: 64,
		Time:     3,
		Threads:  1,
		KeyLen:   32,
	}
}

// UnlockPolicy controls PIN attempt counting and lockout behavior.
type UnlockPolicy struct {
	MaxAttempts    int           // consecutive failures before lockout
	LockoutWindow  time.Duration // how long a lockout lasts
	AttemptTimeout time.Duration // budget for one KDF+decrypt pass
	RelockAfter    time.Duration // idle time before an unlocked vault relocks

	// SubmitInterval/SubmitBurst throttle PIN submissions ahead of the
	// attempt counter, so a scripted caller cannot spend the attempt
	// budget faster than a person could type.
	SubmitInterval time.Duration
	SubmitBurst    int
}

// DefaultUnlockPolicy returns the shipped policy: five tries, five minute
// lockout, generous per-attempt budget.
func DefaultUnlockPolicy() UnlockPolicy {
	return UnlockPolicy{
		MaxAttempts:    5,
		LockoutWindow:  5 * time.Minute,
		AttemptTimeout: 30 * time.Second,
		RelockAfter:    2 * time.Minute,
		SubmitInterval: time.Second,
		SubmitBurst:    3,
	}
}
