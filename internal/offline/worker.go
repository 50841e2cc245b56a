package offline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker states, in lifecycle order.
const (
	StateNew int32 = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

// StateName returns the printable name of a worker state.
func StateName(s int32) string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Worker is one version of the caching proxy. It owns the precache for its
// version and resolves requests once activated.
type Worker struct {
	version   string
	precache  string
	runtime   string
	manifest  []string
	origin    *url.URL
	store     *Store
	base      http.RoundTripper
	transport *Transport

	state       atomic.Int32
	skipWaiting atomic.Bool
}

// NewWorker builds a worker for one version. origin is the upstream base URL
// manifest entries are fetched from.
func NewWorker(store *Store, base http.RoundTripper, origin, version string, manifest []string) (*Worker, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, errors.Wrapf(err, "parse offline origin %q", origin)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("offline origin %q: unsupported scheme", origin)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	if len(manifest) == 0 {
		manifest = DefaultManifest
	}
	pre, run := CacheNames(version)
	return &Worker{
		version:   version,
		precache:  pre,
		runtime:   run,
		manifest:  manifest,
		origin:    u,
		store:     store,
		base:      base,
		transport: NewTransport(store, base, u, version, manifest),
	}, nil
}

func (w *Worker) Version() string { return w.version }

func (w *Worker) State() int32 { return w.state.Load() }

// SkipWaitingRequested reports whether the worker asked to activate without
// waiting for a prior version to be released.
func (w *Worker) SkipWaitingRequested() bool { return w.skipWaiting.Load() }

// SkipWaiting marks the worker eligible for immediate activation.
func (w *Worker) SkipWaiting() { w.skipWaiting.Store(true) }

// Transport returns the request resolver for this worker's caches.
func (w *Worker) Transport() *Transport { return w.transport }

// Install populates the precache generation from the manifest. Population is
// atomic: every entry is fetched (concurrently) and staged, and only a fully
// successful set is committed, in a single store transaction. Any fetch
// failure fails the install as a whole; the hosting environment retries on
// its next registration attempt.
func (w *Worker) Install(ctx context.Context) error {
	if !w.state.CompareAndSwap(StateNew, StateInstalling) {
		return errors.Errorf("offline: install from state %s", StateName(w.State()))
	}

	var mu sync.Mutex
	staged := make(map[string]*Entry, len(w.manifest))

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range w.manifest {
		p := p
		g.Go(func() error {
			entry, err := w.fetchManifestEntry(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			staged[entry.URL] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.state.Store(StateRedundant)
		return errors.Wrap(err, "offline: precache install failed")
	}

	if err := w.store.PutAll(w.precache, staged); err != nil {
		w.state.Store(StateRedundant)
		return errors.Wrap(err, "offline: precache commit failed")
	}

	w.state.Store(StateInstalled)
	// fast-activation policy: a freshly installed version does not wait for
	// running instances of the previous one
	w.skipWaiting.Store(true)
	zap.L().Info("offline: worker installed",
		zap.String("version", w.version),
		zap.Int("precached", len(staged)))
	return nil
}

func (w *Worker) fetchManifestEntry(ctx context.Context, p string) (*Entry, error) {
	u := *w.origin
	u.Path = p
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c, err := drainFetch(w.base, req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", u.String())
	}
	if c.status >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", u.String(), c.status)
	}
	return &Entry{
		URL:    u.String(),
		Status: c.status,
		Header: c.header.Clone(),
		Body:   c.body,
	}, nil
}

// Activate garbage-collects cache generations left behind by prior versions,
// keeping only this worker's precache and runtime names, and records the
// version as active.
func (w *Worker) Activate(ctx context.Context) error {
	_ = ctx
	if !w.state.CompareAndSwap(StateInstalled, StateActivating) {
		return errors.Errorf("offline: activate from state %s", StateName(w.State()))
	}

	gens, err := w.store.Generations()
	if err != nil {
		w.state.Store(StateRedundant)
		return errors.Wrap(err, "offline: enumerate cache generations")
	}
	for _, name := range gens {
		if name == w.precache || name == w.runtime {
			continue
		}
		if err := w.store.DeleteGeneration(name); err != nil {
			zap.L().Warn("offline: failed to delete stale cache generation",
				zap.String("generation", name), zap.Error(err))
			continue
		}
		zap.L().Info("offline: deleted stale cache generation", zap.String("generation", name))
	}

	if err := w.store.SetActiveVersion(w.version); err != nil {
		zap.L().Warn("offline: failed to record active version", zap.Error(err))
	}

	w.state.Store(StateActivated)
	zap.L().Info("offline: worker activated", zap.String("version", w.version))
	return nil
}

// release marks the worker redundant once a newer version claims control.
func (w *Worker) release() {
	w.state.Store(StateRedundant)
}
