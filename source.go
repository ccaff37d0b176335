package cfquorum

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/miekg/dns"
)

// A Source is one third-party service that can report the public address of
// the caller. Implementations must be safe for concurrent use.
type Source interface {
	// Lookup returns the address the service sees for us. The context bounds
	// the whole request; implementations must not outlive it.
	Lookup(ctx context.Context) (netip.Addr, error)
	String() string
}

// DefaultSources returns the built-in lookup endpoints. The order is the poll
// priority in first-success mode: HTTPS services first, plain HTTP last.
func DefaultSources() []Source {
	endpoints := []string{
		"https://checkip.amazonaws.com/",
		"https://httpbin.org/ip",
		"https://icanhazip.com/",
		"https://ipecho.net/plain",
		"https://ipinfo.io/ip",
		"http://checkip.dyndns.com/",
		"http://whatismyip.akamai.com/",
	}
	sources, err := ParseSources(endpoints)
	if err != nil {
		panic("cfquorum: invalid default source: " + err.Error())
	}
	return sources
}

// ParseSource turns a configured endpoint into a Source.
// http and https URLs are fetched and scanned for a dotted-quad body;
// dns://server[:port]/name asks server for the A record of name
// (e.g. dns://resolver1.opendns.com/myip.opendns.com).
func ParseSource(raw string) (Source, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("error parsing source URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		return &HTTPSource{URL: u}, nil
	case "dns":
		server := u.Host
		if u.Port() == "" {
			server = net.JoinHostPort(u.Host, "53")
		}
		name := strings.TrimPrefix(u.Path, "/")
		if name == "" {
			return nil, fmt.Errorf("dns source %q is missing a name to query", raw)
		}
		return &DNSSource{Server: server, Name: name}, nil
	default:
		return nil, fmt.Errorf("unsupported lookup source scheme %q in %q", u.Scheme, raw)
	}
}

// ParseSources parses each endpoint with ParseSource, preserving order.
func ParseSources(endpoints []string) ([]Source, error) {
	sources := make([]Source, 0, len(endpoints))
	for _, e := range endpoints {
		src, err := ParseSource(e)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// maxBodySize caps how much of a response we are willing to scan for an
// address. IP-echo bodies are a few bytes; anything past this is not one.
const maxBodySize = 64 << 10

// HTTPSource reports the address embedded in the response body of a public
// IP-echo endpoint. The body is treated as opaque text; the first dotted-quad
// found in it wins.
type HTTPSource struct {
	URL *url.URL
	// Client is used for requests when set; otherwise http.DefaultClient.
	Client *http.Client
}

// Lookup implements Source.
func (s *HTTPSource) Lookup(ctx context.Context) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := s.Client
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error reading response body: %w", err)
	}
	return extractIPv4(string(body))
}

func (s *HTTPSource) String() string { return s.URL.String() }

// DNSSource reports the address a DNS resolver hands back for a magic name
// that echoes the caller, such as myip.opendns.com on the OpenDNS resolvers.
type DNSSource struct {
	Server string // host:port of the resolver
	Name   string // name to query for an A record
}

// Lookup implements Source.
func (s *DNSSource) Lookup(ctx context.Context) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(s.Name), dns.TypeA)

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m, s.Server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns query failed: %w", err)
	}
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%s returned no A record for %s", s.Server, s.Name)
}

func (s *DNSSource) String() string {
	return "dns://" + s.Server + "/" + strings.TrimSuffix(s.Name, ".")
}

// StaticSource always reports the same address. It is useful for pinning a
// record to a known IP and as a test double.
type StaticSource string

// Lookup implements Source.
func (s StaticSource) Lookup(context.Context) (netip.Addr, error) {
	addr, err := netip.ParseAddr(string(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("unable to parse IP: %w", err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%q is not an IPv4 address", string(s))
	}
	return addr, nil
}

func (s StaticSource) String() string { return string(s) }
