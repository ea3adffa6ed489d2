package breaker

import (
	"context"

	"github.com/c360/sentinel/errors"
)

// Probe runs fn as the recovery test for provider and records the outcome.
// The probe races its own timeout: a hung probe is recorded as a failure
// after the bounded wait instead of pinning the circuit in half_open until
// the probe lock expires.
//
// The caller must hold the probe grant from CanMakeRequest returning
// DecisionProbe.
func (b *Breaker) Probe(ctx context.Context, provider string, fn func(context.Context) error) error {
	pctx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(pctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			code := CodeForError(err)
			if code == "" {
				// Application-level failure still proves the provider is
				// reachable
				b.RecordSuccess(ctx, provider)
				return err
			}
			b.RecordFailure(ctx, provider, code)
			return err
		}
		b.RecordSuccess(ctx, provider)
		return nil

	case <-pctx.Done():
		b.RecordFailure(ctx, provider, CodeTimeout)
		return errors.WrapTransient(pctx.Err(), "Breaker", "Probe", "recovery probe")
	}
}
