package cfquorum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds each lookup request when WithTimeout is not used.
const DefaultTimeout = 5 * time.Second

// New assembles a Client that resolves the host's external IPv4 address and
// keeps the named DNS record pointed at it. A provider option such as
// UsingCloudflare is required.
func New(record string, options ...Option) (*Client, error) {
	if record == "" {
		return nil, fmt.Errorf("cfquorum.New: record name cannot be empty")
	}
	c := &Client{
		record: record,
		resolver: Resolver{
			Sources: DefaultSources(),
			Timeout: DefaultTimeout,
		},
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("cfquorum.New: option %d returned an error: %w", i, err)
		}
	}
	if c.provider == nil {
		return nil, fmt.Errorf("cfquorum.New: no DNS provider was registered and there is no default option - use cfquorum.UsingCloudflare or cfquorum.UsingProvider")
	}

	// Late-bind the logger and http client so they reach dependencies that
	// were registered by earlier options.
	c.applyLogger()
	c.applyHTTPClient()
	return c, nil
}

type Option func(*Client) error

// UsingCloudflare registers Cloudflare as the DNS provider.
func UsingCloudflare(token string, zone CloudflareZone) Option {
	return func(c *Client) (err error) {
		if c.provider, err = newCloudflareProvider(token, zone); err != nil {
			return fmt.Errorf("error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingProvider registers a custom DNS provider.
func UsingProvider(p RecordProvider) Option {
	return func(c *Client) error {
		if p == nil {
			return errors.New("provider cannot be nil")
		}
		c.provider = p
		return nil
	}
}

// UsingSources replaces the default lookup endpoints. Order matters in
// first-success mode: it is the poll priority.
func UsingSources(endpoints ...string) Option {
	return func(c *Client) error {
		if len(endpoints) == 0 {
			return errors.New("at least one lookup source is required")
		}
		sources, err := ParseSources(endpoints)
		if err != nil {
			return err
		}
		c.resolver.Sources = sources
		return nil
	}
}

// UsingHTTPClient sets the http client used by HTTP lookup sources.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		return nil
	}
}

// WithTimeout sets the per-request timeout for lookup sources. It must be
// positive: a zero timeout could never succeed.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("a timeout of %v would mean no request could ever work", d)
		}
		c.resolver.Timeout = d
		return nil
	}
}

// InQuorumMode polls every source and requires an absolute majority instead
// of trusting the first answer. Use it if you don't want a hacked or buggy
// service to be able to hand back the wrong IP.
func InQuorumMode() Option {
	return func(c *Client) error {
		c.resolver.Mode = QuorumVerified
		return nil
	}
}

// DryRun makes Run report the action it would take without writing to the
// provider.
func DryRun() Option {
	return func(c *Client) error {
		c.dryRun = true
		return nil
	}
}

// WithLogger sets the logger for the client and its dependencies. nil discards.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// Client composes the consensus resolver with the record reconciler.
type Client struct {
	record     string
	resolver   Resolver
	provider   RecordProvider
	httpClient *http.Client
	dryRun     bool
	logger     *zerolog.Logger
}

func (c *Client) applyLogger() {
	c.resolver.Logger = c.logger
	if cf, ok := c.provider.(*cloudflareProvider); ok && c.logger != nil {
		cf.logger = c.logger
	}
}

func (c *Client) applyHTTPClient() {
	if c.httpClient == nil {
		return
	}
	for _, src := range c.resolver.Sources {
		if hs, ok := src.(*HTTPSource); ok {
			hs.Client = c.httpClient
		}
	}
}

// ResolveIP runs only the resolution half: it returns the consensus external
// address without touching DNS.
func (c *Client) ResolveIP(ctx context.Context) (netip.Addr, error) {
	return c.resolver.Resolve(ctx)
}

// Run performs one resolution pass followed by one reconciliation pass.
// It holds no state between calls: running it twice with no underlying
// network change yields ActionNoOp the second time.
func (c *Client) Run(ctx context.Context) (Action, error) {
	addr, err := c.resolver.Resolve(ctx)
	if err != nil {
		return ActionNoOp, fmt.Errorf("error resolving external IP: %w", err)
	}
	rc := &Reconciler{Provider: c.provider, DryRun: c.dryRun, Logger: c.logger}
	action, err := rc.Reconcile(ctx, c.record, addr)
	if err != nil {
		return action, fmt.Errorf("error reconciling %s: %w", c.record, err)
	}
	return action, nil
}
