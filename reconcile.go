package cfquorum

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/rs/zerolog"
)

// Record is a read-only snapshot of the provider's currently published A
// record, fetched once per run and never cached across runs.
type Record struct {
	ID      string
	Name    string
	Addr    netip.Addr
	TTL     int
	Proxied *bool
}

// RecordProvider is the DNS provider surface needed by the reconciler.
// Provider errors are opaque: they are wrapped and surfaced, never interpreted.
type RecordProvider interface {
	// CurrentRecord returns the published A record for name.
	CurrentRecord(ctx context.Context, name string) (Record, error)
	// UpdateRecord points rec at addr. Every other attribute of the record
	// (TTL, proxy flag) must be preserved exactly as fetched.
	UpdateRecord(ctx context.Context, rec Record, addr netip.Addr) (Record, error)
}

// Action is the terminal outcome of one reconciliation run.
type Action int

const (
	// ActionNoOp means the published record already matched the resolved IP.
	ActionNoOp Action = iota
	// ActionWouldUpdate means the record is stale but dry-run prevented the write.
	ActionWouldUpdate
	// ActionUpdated means exactly one update was written to the provider.
	ActionUpdated
)

func (a Action) String() string {
	switch a {
	case ActionNoOp:
		return "no-op"
	case ActionWouldUpdate:
		return "would-update"
	case ActionUpdated:
		return "updated"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Reconciler compares a resolved address against the provider's published
// record and issues a write only on mismatch. It holds no state between runs.
type Reconciler struct {
	Provider RecordProvider
	DryRun   bool
	Logger   *zerolog.Logger // nil discards
}

func (rc *Reconciler) logger() zerolog.Logger {
	if rc.Logger == nil {
		return zerolog.Nop()
	}
	return *rc.Logger
}

// Reconcile fetches the record for name once, compares it to resolved using
// canonical address equality, and issues at most one update. The returned
// Action is only meaningful when err is nil. Write failures are fatal for the
// run; retrying is the caller's scheduler's job.
func (rc *Reconciler) Reconcile(ctx context.Context, name string, resolved netip.Addr) (Action, error) {
	log := rc.logger()

	rec, err := rc.Provider.CurrentRecord(ctx, name)
	if err != nil {
		return ActionNoOp, fmt.Errorf("unable to fetch the current record for %s: %w", name, err)
	}
	if rec.Addr == resolved {
		log.Info().Str("ip", resolved.String()).Msg("existing record is already correct; exiting without changes")
		return ActionNoOp, nil
	}

	log.Info().Str("dns", rec.Addr.String()).Str("current", resolved.String()).Msg("IP difference between DNS and the current address")
	if rc.DryRun {
		log.Info().Str("ip", resolved.String()).Msg("would update DNS record")
		return ActionWouldUpdate, nil
	}

	updated, err := rc.Provider.UpdateRecord(ctx, rec, resolved)
	if err != nil {
		return ActionNoOp, fmt.Errorf("failed to update DNS record %s: %w", rec.ID, err)
	}
	log.Info().Str("ip", updated.Addr.String()).Str("record", updated.Name).Msg("DNS record updated")
	return ActionUpdated, nil
}
