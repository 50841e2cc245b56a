package offline

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// MsgSkipWaiting instructs a waiting worker version to take over
// immediately. It is the only control message type.
const MsgSkipWaiting = "SKIP_WAITING"

// Message is a one-way control message from the hosting application to the
// caching layer.
type Message struct {
	Type string `json:"type"`
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store    *Store
	Origin   string
	Manifest []string
	// Base is the transport used for real network fetches; nil means
	// http.DefaultTransport.
	Base http.RoundTripper
	// DeferActivation makes version updates wait for a SKIP_WAITING message
	// instead of taking over as soon as they are installed. The zero value
	// matches the fast-activation policy.
	DeferActivation bool
}

// Status is a snapshot of the registration for inspection.
type Status struct {
	ActiveVersion  string   `json:"active_version"`
	ActiveState    string   `json:"active_state"`
	WaitingVersion string   `json:"waiting_version,omitempty"`
	WaitingState   string   `json:"waiting_state,omitempty"`
	Generations    []string `json:"generations"`
}

// Registry is the caching layer's registration point. It runs the worker
// lifecycle in its own goroutine, consumes control messages, and routes
// requests through the currently active worker. It implements
// http.RoundTripper so the hosting application never knows which resolution
// path answered.
type Registry struct {
	cfg      RegistryConfig
	mu       sync.RWMutex
	active   *Worker
	waiting  *Worker
	messages chan Message
	done     chan struct{}
	once     sync.Once
}

// NewRegistry creates the registration point and starts its control loop.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		cfg:      cfg,
		messages: make(chan Message, 8),
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

// Register installs version and, per the activation policy, promotes it.
// An install failure leaves the previous registration in control; callers
// retry on their next registration attempt.
func (r *Registry) Register(ctx context.Context, version string) error {
	r.mu.RLock()
	cur := r.active
	r.mu.RUnlock()
	if cur != nil && cur.Version() == version {
		return nil
	}

	w, err := NewWorker(r.cfg.Store, r.cfg.Base, r.cfg.Origin, version, r.cfg.Manifest)
	if err != nil {
		return err
	}
	if err := w.Install(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || (!r.cfg.DeferActivation && w.SkipWaitingRequested()) {
		return r.promoteLocked(ctx, w)
	}
	if r.waiting != nil {
		r.waiting.release()
	}
	r.waiting = w
	zap.L().Info("offline: update installed, waiting for skip-waiting signal",
		zap.String("version", version))
	return nil
}

// promoteLocked activates w and claims control from the previous version.
// Callers hold r.mu.
func (r *Registry) promoteLocked(ctx context.Context, w *Worker) error {
	if err := w.Activate(ctx); err != nil {
		return err
	}
	if r.active != nil {
		r.active.release()
	}
	r.active = w
	if r.waiting == w {
		r.waiting = nil
	}
	return nil
}

// PostMessage delivers a control message asynchronously. Messages posted
// after Close are dropped.
func (r *Registry) PostMessage(m Message) {
	select {
	case r.messages <- m:
	case <-r.done:
	}
}

func (r *Registry) loop() {
	for {
		select {
		case m := <-r.messages:
			if m.Type != MsgSkipWaiting {
				zap.L().Debug("offline: ignoring unknown control message", zap.String("type", m.Type))
				continue
			}
			r.mu.Lock()
			if w := r.waiting; w != nil {
				w.SkipWaiting()
				if err := r.promoteLocked(context.Background(), w); err != nil {
					zap.L().Error("offline: skip-waiting promotion failed", zap.Error(err))
				}
			}
			r.mu.Unlock()
		case <-r.done:
			return
		}
	}
}

// Active returns the worker currently in control, nil before the first
// successful registration.
func (r *Registry) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting returns the installed-but-not-activated worker, if any.
func (r *Registry) Waiting() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// RoundTrip routes the request through the active worker's resolver. With
// no registration yet, requests go straight to the network, as for a page
// not yet under the proxy's control.
func (r *Registry) RoundTrip(req *http.Request) (*http.Response, error) {
	if w := r.Active(); w != nil {
		return w.Transport().RoundTrip(req)
	}
	base := r.cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Client returns an http.Client that fetches through the registry.
func (r *Registry) Client() *http.Client {
	return &http.Client{Transport: r}
}

// Status reports the registration state.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st Status
	if r.active != nil {
		st.ActiveVersion = r.active.Version()
		st.ActiveState = StateName(r.active.State())
	}
	if r.waiting != nil {
		st.WaitingVersion = r.waiting.Version()
		st.WaitingState = StateName(r.waiting.State())
	}
	if r.cfg.Store != nil {
		st.Generations, _ = r.cfg.Store.Generations()
	}
	return st
}

// Close stops the control loop. The cache store is closed by its owner.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })
}
