package adapter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mentionwatch/internal/errs"

	"golang.org/x/sync/errgroup"
)

// healthTimeout bounds each ValidateConfiguration call made by Health.
const healthTimeout = 10 * time.Second

// Registry resolves platform names to adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Platform().
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	r.adapters[strings.ToLower(a.Platform())] = a
	r.mu.Unlock()
}

// Get returns the adapter for platform or a ConfigurationMissing error.
func (r *Registry) Get(platform string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(platform))]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindConfig, platform, "no adapter configured")
	}
	return a, nil
}

// Platforms lists registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Health runs ValidateConfiguration on every adapter concurrently.
func (r *Registry) Health(ctx context.Context) map[string]bool {
	platforms := r.Platforms()
	res := make([]bool, len(platforms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range platforms {
		a, err := r.Get(p)
		if err != nil {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, healthTimeout)
			defer cancel()
			res[i] = a.ValidateConfiguration(cctx)
			return nil
		})
	}
	_ = g.Wait()
	out := make(map[string]bool, len(platforms))
	for i, p := range platforms {
		out[p] = res[i]
	}
	return out
}
