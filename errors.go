package cfquorum

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrAllSourcesFailed is returned when no lookup source produced a candidate
// address. Use errors.Is to match it; the per-source failures are attached.
var ErrAllSourcesFailed = errors.New("all lookup sources failed")

// A Vote is one distinct candidate address together with the number of
// sources that reported it during a quorum-verified pass.
type Vote struct {
	Addr  netip.Addr
	Count int
}

// NoQuorumError is returned in quorum-verified mode when sources disagree and
// no candidate holds an absolute majority of the votes. Votes lists every
// competing tally in the order the candidates were first seen.
type NoQuorumError struct {
	Votes []Vote
	Total int
}

func (e *NoQuorumError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no IP has an absolute majority of the %d votes:", e.Total)
	for _, v := range e.Votes {
		fmt.Fprintf(&b, " %s=%d", v.Addr, v.Count)
	}
	return b.String()
}
