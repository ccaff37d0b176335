package cfquorum

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects how the resolver treats its sources.
type Mode int

const (
	// FirstSuccess polls sources in order and returns the first address it
	// can extract, skipping sources that fail.
	FirstSuccess Mode = iota
	// QuorumVerified polls every source and only returns an address backed
	// by an absolute majority of the sources that responded.
	QuorumVerified
)

// Resolver determines the host's public IPv4 address from a set of
// independent, untrusted lookup sources.
//
// A failure of any single source (network error, timeout, garbage body) never
// aborts a pass; only running out of sources, or failing to reach quorum,
// does. A pass either produces exactly one address or an error, never a
// partial result.
type Resolver struct {
	// Sources are the endpoints to poll. Order is the poll priority in
	// FirstSuccess mode. Must be non-empty.
	Sources []Source
	// Timeout bounds each request individually. Must be positive: a zero
	// timeout could never succeed and is rejected before any request is made.
	Timeout time.Duration
	Mode    Mode
	// Logger receives per-source progress at debug level and disagreement
	// warnings. nil discards.
	Logger *zerolog.Logger
}

func (r *Resolver) logger() zerolog.Logger {
	if r.Logger == nil {
		return zerolog.Nop()
	}
	return *r.Logger
}

// Resolve runs one resolution pass.
func (r *Resolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if len(r.Sources) == 0 {
		return netip.Addr{}, errors.New("no lookup sources were provided")
	}
	if r.Timeout <= 0 {
		return netip.Addr{}, fmt.Errorf("a timeout of %v would mean no request could ever work", r.Timeout)
	}
	if r.Mode == QuorumVerified {
		return r.resolveQuorum(ctx)
	}
	return r.resolveFirst(ctx)
}

func (r *Resolver) lookup(ctx context.Context, src Source) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return src.Lookup(ctx)
}

func (r *Resolver) resolveFirst(ctx context.Context) (netip.Addr, error) {
	log := r.logger()
	var errs []error
	for _, src := range r.Sources {
		addr, err := r.lookup(ctx, src)
		if err != nil {
			log.Debug().Err(err).Str("source", src.String()).Msg("source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			continue
		}
		log.Debug().Str("source", src.String()).Str("ip", addr.String()).Msg("source answered")
		return addr, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
}

func (r *Resolver) resolveQuorum(ctx context.Context) (netip.Addr, error) {
	log := r.logger()

	type outcome struct {
		addr netip.Addr
		err  error
	}
	// One slot per source: no locking needed, and folding the slice
	// afterwards keeps first-seen order stable regardless of scheduling.
	outcomes := make([]outcome, len(r.Sources))
	var wg sync.WaitGroup
	for i, src := range r.Sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			addr, err := r.lookup(ctx, src)
			outcomes[i] = outcome{addr: addr, err: err}
		}(i, src)
	}
	wg.Wait()

	counts := make(map[netip.Addr]int)
	var order []netip.Addr
	var errs []error
	for i, out := range outcomes {
		src := r.Sources[i]
		if out.err != nil {
			log.Debug().Err(out.err).Str("source", src.String()).Msg("source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src, out.err))
			continue
		}
		log.Debug().Str("source", src.String()).Str("ip", out.addr.String()).Msg("source answered")
		if _, seen := counts[out.addr]; !seen {
			order = append(order, out.addr)
		}
		counts[out.addr]++
	}

	switch len(order) {
	case 0:
		return netip.Addr{}, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	case 1:
		log.Debug().Str("ip", order[0].String()).Int("votes", counts[order[0]]).Msg("all responding sources agree")
		return order[0], nil
	}

	log.Warn().Msg("some sources disagree on the external IP")

	total := 0
	for _, n := range counts {
		total += n
	}
	top := order[0]
	tied := false
	for _, addr := range order[1:] {
		switch {
		case counts[addr] > counts[top]:
			top, tied = addr, false
		case counts[addr] == counts[top]:
			tied = true
		}
	}
	votes := make([]Vote, 0, len(order))
	for _, addr := range order {
		votes = append(votes, Vote{Addr: addr, Count: counts[addr]})
	}
	if tied {
		log.Warn().Interface("votes", votes).Str("ip", top.String()).Msg("candidates tie for the highest tally; keeping the first seen")
	}
	// An absolute majority is at least two thirds of all votes, computed with
	// integer arithmetic: top >= floor(total*2/3).
	if counts[top] >= total*2/3 {
		log.Info().Str("ip", top.String()).Int("votes", counts[top]).Int("total", total).Msg("IP has an absolute majority of the votes")
		return top, nil
	}
	for _, v := range votes {
		log.Warn().Str("ip", v.Addr.String()).Int("votes", v.Count).Msg("no absolute majority")
	}
	return netip.Addr{}, &NoQuorumError{Votes: votes, Total: total}
}
