package sntp

import (
	"context"
	"net"
	"sync"

	"github.com/tnicklin/sysclock/logger"
)

// LookupFunc resolves a hostname to addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver picks a server address from an ordered list of hostnames with a
// literal address as the final fallback. The chosen address is cached
// until the next Resolve.
type Resolver struct {
	servers  []string
	fallback string
	lookup   LookupFunc
	logger   logger.Logger

	mu   sync.Mutex
	addr string
}

// ResolverParams configures a Resolver. Lookup defaults to the system
// resolver.
type ResolverParams struct {
	Config Config
	Lookup LookupFunc
	Logger logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver(p ResolverParams) *Resolver {
	r := &Resolver{
		servers:  p.Config.Servers,
		fallback: p.Config.FallbackIP,
		lookup:   p.Lookup,
		logger:   p.Logger,
	}
	if r.lookup == nil {
		r.lookup = net.DefaultResolver.LookupHost
	}
	if r.logger == nil {
		r.logger = logger.NewNop()
	}
	if r.fallback == "" {
		r.fallback = DefaultFallbackIP
	}
	return r
}

// Resolve looks up each hostname in order and caches the first address
// found, or the fallback when none resolves.
func (r *Resolver) Resolve(ctx context.Context) string {
	addr := r.fallback
	for _, host := range r.servers {
		addrs, err := r.lookup(ctx, host)
		if err != nil || len(addrs) == 0 {
			r.logger.WarnW("resolving time server failed", "host", host, "error", err)
			continue
		}
		addr = addrs[0]
		r.logger.DebugW("resolved time server", "host", host, "address", addr)
		break
	}

	r.mu.Lock()
	r.addr = addr
	r.mu.Unlock()
	return addr
}

// Address returns the cached address, or empty before the first Resolve.
func (r *Resolver) Address() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}
