package reachability

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/samber/lo"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

// Prober measures the reachability of a host. Probe may block; it is never
// called on a run loop.
type Prober interface {
	Probe(ctx context.Context, host string) (Flags, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, host string) (Flags, error)

func (f ProberFunc) Probe(ctx context.Context, host string) (Flags, error) {
	return f(ctx, host)
}

// ProberOptions configures a NetProber
type ProberOptions struct {
	// Port dialled when the host carries none; defaults to "443"
	Port string
	// Timeout bounds one probe; defaults to 5s
	Timeout time.Duration
	// CacheTTL is how long a result is reused; zero disables caching
	CacheTTL time.Duration
	Logger   core.Logger
}

// NetProber resolves the host and opens a TCP connection to it. Results are
// cached per host for CacheTTL.
type NetProber struct {
	port     string
	timeout  time.Duration
	cacheTTL time.Duration
	resolver *net.Resolver
	dialer   *net.Dialer
	cache    *ttlcache.Cache[string, Flags]
	logger   core.Logger
}

// NewNetProber creates a prober using the system resolver
func NewNetProber(opts ProberOptions) *NetProber {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}
	timeout := lo.Ternary(opts.Timeout > 0, opts.Timeout, 5*time.Second)
	return &NetProber{
		port:     lo.Ternary(opts.Port != "", opts.Port, "443"),
		timeout:  timeout,
		cacheTTL: opts.CacheTTL,
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{Timeout: timeout},
		cache: ttlcache.New[string, Flags](
			ttlcache.WithTTL[string, Flags](opts.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, Flags](),
		),
		logger: opts.Logger,
	}
}

// Probe implements Prober. Resolution or connection failures are reported
// through the flags, not the error; the error is only set when ctx ends.
func (p *NetProber) Probe(ctx context.Context, host string) (Flags, error) {
	if p.cacheTTL > 0 {
		if item := p.cache.Get(host); item != nil {
			return item.Value(), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	name, port, err := net.SplitHostPort(host)
	if err != nil {
		name, port = host, p.port
	}

	var flags Flags
	addrs, err := p.resolver.LookupIPAddr(ctx, name)
	if err != nil || len(addrs) == 0 {
		p.logger.Debug().Str("host", name).Err(err).Msg("host did not resolve")
		return p.store(ctx, host, flags)
	}
	flags |= FlagResolved
	if lo.SomeBy(addrs, func(a net.IPAddr) bool {
		return a.IP.IsLoopback() || a.IP.IsLinkLocalUnicast()
	}) {
		flags |= FlagLocalAddress
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(name, port))
	if err != nil {
		p.logger.Debug().Str("host", name).Str("port", port).Err(err).Msg("host did not accept a connection")
		return p.store(ctx, host, flags)
	}
	_ = conn.Close()
	flags |= FlagReachable
	return p.store(ctx, host, flags)
}

// store caches flags unless the probe was cut short by the caller
func (p *NetProber) store(ctx context.Context, host string, flags Flags) (Flags, error) {
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return flags, err
	}
	if p.cacheTTL > 0 {
		p.cache.Set(host, flags, ttlcache.DefaultTTL)
	}
	return flags, nil
}
