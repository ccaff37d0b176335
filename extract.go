package cfquorum

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
)

// dottedQuad matches the first unsigned dotted-quad run in free text.
// The word boundaries keep it from starting mid-number.
var dottedQuad = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}\b`)

var errNoAddress = errors.New("no IPv4 address found in response body")

// extractIPv4 returns the first dotted-quad substring of body that parses as
// a valid IPv4 address. Bodies with surrounding text (JSON fields, HTML) are
// fine as long as the address is the first run of numbers shaped like one.
// A match with out-of-range octets is a failure, not a reason to keep scanning.
func extractIPv4(body string) (netip.Addr, error) {
	m := dottedQuad.FindString(body)
	if m == "" {
		return netip.Addr{}, errNoAddress
	}
	addr, err := netip.ParseAddr(m)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("matched %q but it is not a valid IPv4 address: %w", m, err)
	}
	return addr, nil
}
