// ABOUTME: PIN-entry state machine: attempt counting, lockout, relock.
// ABOUTME: Mediates every Vault.Unlock call; persists the failure counter.
package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UnlockState is the coarse authentication state the UI subscribes to.
type UnlockState int

const (
	StateLocked UnlockState = iota
	StateLockedOut
	StateUnlocked
)

func (s UnlockState) String() string {
	switch s {
	case StateLockedOut:
		return "locked_out"
	case StateUnlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

// StateChange is the snapshot pushed to subscribers on every transition.
type StateChange struct {
	State       UnlockState
	Attempts    int
	LockedUntil time.Time
}

// Unlocker rate-limits and tracks PIN attempts, orchestrating Vault.Unlock.
// State transitions are emitted to subscribers; the UI observes rather than
// mutating shared state.
type Unlocker struct {
	vault  *Vault
	store  SecretStore
	policy UnlockPolicy
	log    *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        UnlockState
	attempts     AttemptState
	session      *SigningContext
	lastActivity time.Time
	limiter      *rate.Limiter
	subscribers  []func(StateChange)
	submitting   bool
}

// NewUnlocker builds the state machine over a vault and its store.
func NewUnlocker(v *Vault, store SecretStore, policy UnlockPolicy) *Unlocker {
	if policy.MaxAttempts <= 0 {
		policy = DefaultUnlockPolicy()
	}
	interval := policy.SubmitInterval
	if interval <= 0 {
		interval = DefaultUnlockPolicy().SubmitInterval
	}
	burst := policy.SubmitBurst
	if burst <= 0 {
		burst = DefaultUnlockPolicy().SubmitBurst
	}
	return &Unlocker{
		vault:   v,
		store:   store,
		policy:  policy,
		log:     v.log,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Restore hydrates the persisted failure counter after a process restart,
// so restarting the app does not reset the lockout clock.
func (u *Unlocker) Restore(ctx context.Context) error {
	state, err := u.store.LoadAttempts(ctx)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if !state.LockedUntil.IsZero() && !u.now().Before(state.LockedUntil) {
		// Window elapsed while the app was closed: back to Locked(0).
		u.attempts = AttemptState{}
		u.persistAttemptsLocked(ctx)
		return nil
	}
	u.attempts = state
	if !state.LockedUntil.IsZero() {
		u.state = StateLockedOut
	}
	return nil
}

// Subscribe registers a state-change observer. Callbacks run synchronously
// after each transition, outside the machine's lock.
func (u *Unlocker) Subscribe(fn func(StateChange)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.subscribers = append(u.subscribers, fn)
}

// Status returns the current state snapshot.
func (u *Unlocker) Status() StateChange {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.snapshot()
}

// Session returns the live signing context, nil unless unlocked.
func (u *Unlocker) Session() *SigningContext {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session
}

// Submit runs one PIN attempt. While locked out, or while another attempt
// is in flight, the submission is rejected before any decryption happens,
// so rejected submits cannot be used to spend the brute-force budget.
// Wrong-PIN and missing-wallet failures are indistinguishable here; boot
// routing uses Vault.HasWallet instead.
func (u *Unlocker) Submit(ctx context.Context, pin string) (*SigningContext, error) {
	u.mu.Lock()
	if u.state == StateUnlocked {
		u.mu.Unlock()
		return nil, ErrBusy
	}
	if u.submitting {
		u.mu.Unlock()
		return nil, ErrBusy
	}
	if u.state == StateLockedOut {
		if u.now().Before(u.attempts.LockedUntil) {
			err := &UnlockError{
				Attempts:    u.attempts.Failures,
				LockedUntil: u.attempts.LockedUntil,
				Err:         ErrLockedOut,
			}
			u.mu.Unlock()
			return nil, err
		}
		// Window elapsed: back to Locked(0).
		u.attempts = AttemptState{}
		u.state = StateLocked
		u.persistAttemptsLocked(ctx)
	}
	if !u.limiter.Allow() {
		u.mu.Unlock()
		return nil, ErrBusy
	}
	u.submitting = true
	u.mu.Unlock()

	sc, err := u.vault.Unlock(ctx, pin)

	u.mu.Lock()
	u.submitting = false
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrBusy) {
			// Device/OS problems and admission rejections are not PIN
			// failures; surfaced distinctly, never counted as attempts.
			u.mu.Unlock()
			return nil, err
		}
		u.attempts.Failures++
		if u.attempts.Failures >= u.policy.MaxAttempts {
			u.attempts.LockedUntil = u.now().Add(u.policy.LockoutWindow)
			u.state = StateLockedOut
		}
		u.persistAttemptsLocked(ctx)
		out := &UnlockError{
			Attempts:    u.attempts.Failures,
			LockedUntil: u.attempts.LockedUntil,
			Err:         ErrAuthenticationFailed,
		}
		if u.state == StateLockedOut {
			out.Err = ErrLockedOut
		}
		snap := u.snapshot()
		u.mu.Unlock()
		u.notify(snap)
		return nil, out
	}

	u.attempts = AttemptState{}
	u.state = StateUnlocked
	u.session = sc
	u.lastActivity = u.now()
	if cerr := u.store.ClearAttempts(ctx); cerr != nil {
		u.log.Warn("clearing attempt counter failed", zap.Error(cerr))
	}
	snap := u.snapshot()
	u.mu.Unlock()
	u.notify(snap)
	return sc, nil
}

// ChangePIN verifies the old PIN through the same throttle, counter and
// lockout as Submit, then re-encrypts the blob under the new PIN. The
// machine relocks once the re-encryption finishes, so a PIN change never
// leaves the vault sitting unlocked.
func (u *Unlocker) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}
	sc, err := u.Submit(ctx, oldPIN)
	if err != nil {
		return err
	}
	defer u.Lock()
	return u.vault.ChangePIN(ctx, sc, newPIN)
}

// Lock relocks explicitly, closing the signing context.
func (u *Unlocker) Lock() {
	u.mu.Lock()
	if u.state != StateUnlocked {
		u.mu.Unlock()
		return
	}
	if u.session != nil {
		u.session.Close()
		u.session = nil
	}
	u.state = StateLocked
	snap := u.snapshot()
	u.mu.Unlock()
	u.notify(snap)
}

// Touch records foreground activity, deferring the idle relock.
func (u *Unlocker) Touch() {
	u.mu.Lock()
	u.lastActivity = u.now()
	u.mu.Unlock()
}

// MaybeRelock locks the vault if it has been idle past the policy window.
// Called by the UI on app resume; there is no background timer.
func (u *Unlocker) MaybeRelock() {
	u.mu.Lock()
	idle := u.state == StateUnlocked &&
		u.policy.RelockAfter > 0 &&
		u.now().Sub(u.lastActivity) >= u.policy.RelockAfter
	u.mu.Unlock()
	if idle {
		u.Lock()
	}
}

func (u *Unlocker) snapshot() StateChange {
	return StateChange{
		State:       u.state,
		Attempts:    u.attempts.Failures,
		LockedUntil: u.attempts.LockedUntil,
	}
}

func (u *Unlocker) persistAttemptsLocked(ctx context.Context) {
	if err := u.store.SaveAttempts(ctx, u.attempts); err != nil {
		u.log.Warn("persisting attempt counter failed", zap.Error(err))
	}
}

func (u *Unlocker) notify(snap StateChange) {
	u.mu.Lock()
	subs := make([]func(StateChange), len(u.subscribers))
	copy(subs, u.subscribers)
	u.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
