// Package bootstrap wires a loaded config.Config into a running server: it
// builds the filter registry and expands every rule's filter chain (with
// cycle detection), constructs the shared cache and upstream manager, and
// brings up the UDP and TCP listeners.
package bootstrap

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jjeffcaii/zerodns-sub000/internal/cache"
	"github.com/jjeffcaii/zerodns-sub000/internal/config"
	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/rule"
	"github.com/jjeffcaii/zerodns-sub000/internal/server"
	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// Runtime holds the listeners produced by Build, ready to Run.
type Runtime struct {
	udp *server.UDPServer
	tcp *server.TCPServer
}

// Build loads no files itself (cfg is already parsed/validated by
// config.Load) and constructs everything downstream of it: the filter
// registry, every rule's expanded chain, the shared response cache, and
// the UDP/TCP listeners bound and ready to Serve.
func Build(cfg *config.Config) (*Runtime, error) {
	if err := logging.Init(cfg.Log); err != nil {
		return nil, err
	}

	sysResolver := upstream.NewSystemResolver()
	mgr := upstream.NewManager(sysResolver)

	reg := filter.NewRegistry()
	filter.RegisterBuiltins(reg, mgr)

	engine, err := buildEngine(cfg, reg)
	if err != nil {
		return nil, err
	}

	var c *cache.LoadingCache
	if cfg.Server.CacheSize > 0 {
		c = cache.New(cfg.Server.CacheSize)
	}

	handler := server.NewHandler(engine, c)

	udpSrv, err := server.NewUDPServer(cfg.Server.Listen, handler)
	if err != nil {
		return nil, xerrors.NetworkFailure("bootstrap: binding UDP listener ", cfg.Server.Listen).Base(err)
	}

	tcpSrv, err := server.NewTCPServer(cfg.Server.ListenTCPAddr(), handler, cfg.Server.ProxyProtocol)
	if err != nil {
		udpSrv.Close()
		return nil, xerrors.NetworkFailure("bootstrap: binding TCP listener ", cfg.Server.ListenTCPAddr()).Base(err)
	}

	logging.L().Info().
		Str("udp", cfg.Server.Listen).
		Str("tcp", cfg.Server.ListenTCPAddr()).
		Int("cache_size", cfg.Server.CacheSize).
		Msg("bootstrap: listeners ready")

	return &Runtime{udp: udpSrv, tcp: tcpSrv}, nil
}

// Run serves both listeners until ctx is cancelled or either one fails,
// using errgroup so the first bind/serve failure cancels the other and is
// returned to the caller (spec section 5: bring up listeners concurrently,
// propagate the first failure).
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.udp.Serve(ctx) })
	g.Go(func() error { return r.tcp.Serve(ctx) })
	return g.Wait()
}

// Close closes both listeners, unblocking Run.
func (r *Runtime) Close() error {
	uerr := r.udp.Close()
	terr := r.tcp.Close()
	if uerr != nil {
		return uerr
	}
	return terr
}

// buildEngine expands every rule's target filter name into a rule.Handle,
// sharing expanded chains across rules that reference the same name.
func buildEngine(cfg *config.Config, reg *filter.Registry) (*rule.Engine, error) {
	resolving := make(map[string]bool)
	expanded := make(map[string][]filter.Filter)
	handles := make(map[string]*rule.Handle)

	rules := make([]rule.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if _, ok := handles[r.Filter]; !ok {
			fs, err := expandChain(r.Filter, cfg, reg, resolving, expanded)
			if err != nil {
				return nil, err
			}
			handles[r.Filter] = rule.NewHandle(filter.NewChain(fs...))
		}
		rules = append(rules, rule.Rule{Glob: r.Domain, Target: r.Filter})
	}

	return rule.NewEngine(rules, handles), nil
}

// expandChain resolves name to its ordered list of Filter instances,
// recursively expanding "chain" kind entries' refs and memoizing the
// result. resolving tracks the names currently being expanded on the
// active call stack so a reference cycle is rejected rather than causing
// unbounded recursion.
func expandChain(name string, cfg *config.Config, reg *filter.Registry, resolving map[string]bool, expanded map[string][]filter.Filter) ([]filter.Filter, error) {
	if fs, ok := expanded[name]; ok {
		return fs, nil
	}
	if resolving[name] {
		return nil, xerrors.InvalidConfig("bootstrap: cycle detected expanding filter chain at ", name)
	}

	fc, ok := cfg.Filters[name]
	if !ok {
		return nil, xerrors.InvalidConfig("bootstrap: unknown filter ", name)
	}

	resolving[name] = true
	defer delete(resolving, name)

	var filters []filter.Filter
	if fc.Kind == "chain" {
		refs, ok := fc.Props["refs"].([]interface{})
		if !ok {
			return nil, xerrors.InvalidConfig("bootstrap: filters.", name, " (chain) missing \"refs\"")
		}
		for _, r := range refs {
			refName, ok := r.(string)
			if !ok {
				return nil, xerrors.InvalidConfig("bootstrap: filters.", name, " refs must be strings")
			}
			sub, err := expandChain(refName, cfg, reg, resolving, expanded)
			if err != nil {
				return nil, err
			}
			filters = append(filters, sub...)
		}
	} else {
		f, err := reg.Build(fc.Kind, fc.Props)
		if err != nil {
			return nil, err
		}
		filters = []filter.Filter{f}
	}

	expanded[name] = filters
	return filters, nil
}
