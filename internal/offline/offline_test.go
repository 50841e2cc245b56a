package offline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const offlinePageBody = "<html><body>you are offline</body></html>"

// testOrigin serves the application shell and a dynamic endpoint, counting
// hits per path.
type testOrigin struct {
	server *httptest.Server
	hits   map[string]*int64
}

func newTestOrigin(t *testing.T, missing ...string) *testOrigin {
	t.Helper()
	skip := make(map[string]bool)
	for _, p := range missing {
		skip[p] = true
	}
	o := &testOrigin{hits: map[string]*int64{}}
	pages := map[string]string{
		"/":             "<html>shell</html>",
		"/index.html":   "<html>shell</html>",
		"/styles.css":   "body{}",
		"/app.js":       "console.log('pos')",
		"/icon-192.svg": "<svg/>",
		"/icon-512.svg": "<svg/>",
		OfflinePage:     offlinePageBody,
		"/api/data":     `{"products":3}`,
	}
	mux := http.NewServeMux()
	for p, body := range pages {
		p, body := p, body
		counter := new(int64)
		o.hits[p] = counter
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != p {
				http.NotFound(w, r)
				return
			}
			atomic.AddInt64(counter, 1)
			if skip[p] {
				http.NotFound(w, r)
				return
			}
			_, _ = io.WriteString(w, body)
		})
	}
	o.server = httptest.NewServer(mux)
	t.Cleanup(o.server.Close)
	return o
}

func (o *testOrigin) hitCount(path string) int64 {
	return atomic.LoadInt64(o.hits[path])
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// downTransport simulates an unreachable network.
type downTransport struct{}

func (downTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network unreachable")
}

func installWorker(t *testing.T, store *Store, origin string, version string) *Worker {
	t.Helper()
	w, err := NewWorker(store, nil, origin, version, nil)
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	return w
}

func get(t *testing.T, rt http.RoundTripper, rawurl string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawurl, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestInstallPopulatesPrecache(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)

	w, err := NewWorker(store, nil, origin.server.URL, "v1", nil)
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))

	assert.Equal(t, StateInstalled, w.State())
	assert.True(t, w.SkipWaitingRequested(), "install makes the version immediately eligible to activate")

	pre, _ := CacheNames("v1")
	assert.Equal(t, len(DefaultManifest), store.EntryCount(pre))
	for _, p := range DefaultManifest {
		_, ok := store.Get(pre, origin.server.URL+p)
		assert.True(t, ok, "manifest entry %s precached", p)
	}
}

func TestInstallIsAtomic(t *testing.T) {
	origin := newTestOrigin(t, "/styles.css")
	store := newTestStore(t)

	w, err := NewWorker(store, nil, origin.server.URL, "v1", nil)
	require.NoError(t, err)
	err = w.Install(context.Background())
	require.Error(t, err, "a single failed manifest fetch fails the install as a whole")
	assert.Equal(t, StateRedundant, w.State())

	pre, _ := CacheNames("v1")
	assert.Equal(t, 0, store.EntryCount(pre), "no partial precache population")
}

func TestNavigationNetworkFirstMirrorsRuntime(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")

	resp := get(t, w.Transport(), origin.server.URL+"/", map[string]string{"Sec-Fetch-Mode": "navigate"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Offline-Cache"), "live response, not a cache hit")
	assert.Equal(t, "<html>shell</html>", body(t, resp))

	_, run := CacheNames("v1")
	e, ok := store.Get(run, origin.server.URL+"/")
	require.True(t, ok, "a copy is observable in the runtime cache keyed by the request")
	assert.Equal(t, "<html>shell</html>", string(e.Body))
}

func TestNavigationOfflineFallback(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")
	origin.server.Close()

	resp := get(t, w.Transport(), origin.server.URL+"/", map[string]string{"Sec-Fetch-Mode": "navigate"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Offline-Cache"))
	assert.Equal(t, offlinePageBody, body(t, resp))
}

func TestStaticAssetCacheFirstWithoutNetworkAttempt(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")

	installHits := origin.hitCount("/styles.css")

	resp := get(t, w.Transport(), origin.server.URL+"/styles.css", nil)
	assert.Equal(t, "body{}", body(t, resp))
	pre, _ := CacheNames("v1")
	assert.Equal(t, pre, resp.Header.Get("X-Offline-Cache"))
	assert.Equal(t, installHits, origin.hitCount("/styles.css"), "cache hit must not touch the network")

	// same behavior when the network is gone
	origin.server.Close()
	resp = get(t, w.Transport(), origin.server.URL+"/styles.css", nil)
	assert.Equal(t, "body{}", body(t, resp))
}

func TestStaticAssetMissFetchesAndMirrors(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")

	// a query string keeps the key out of the precache while the path still
	// classifies as a static asset
	resp := get(t, w.Transport(), origin.server.URL+"/app.js?r=1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Offline-Cache"), "cache miss goes to the network")

	_, run := CacheNames("v1")
	_, ok := store.Get(run, origin.server.URL+"/app.js?r=1")
	assert.True(t, ok, "network result mirrored into the runtime cache")
}

func TestDynamicNetworkFirstWithRuntimeFallback(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")

	apiURL := origin.server.URL + "/api/data"
	resp := get(t, w.Transport(), apiURL, nil)
	assert.Equal(t, `{"products":3}`, body(t, resp))

	origin.server.Close()

	// exact request now answered from the runtime cache
	resp = get(t, w.Transport(), apiURL, nil)
	_, run := CacheNames("v1")
	assert.Equal(t, run, resp.Header.Get("X-Offline-Cache"))
	assert.Equal(t, `{"products":3}`, body(t, resp))

	// never-seen request falls back to the offline page
	resp = get(t, w.Transport(), origin.server.URL+"/api/other", nil)
	assert.Equal(t, offlinePageBody, body(t, resp))
}

func TestActivateDeletesStaleGenerations(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)

	// leftovers from a prior deployment
	oldPre, oldRun := CacheNames("v0")
	require.NoError(t, store.Put(oldPre, "k", &Entry{URL: "k", Status: 200}))
	require.NoError(t, store.Put(oldRun, "k", &Entry{URL: "k", Status: 200}))

	installWorker(t, store, origin.server.URL, "v1")

	gens, err := store.Generations()
	require.NoError(t, err)
	pre, run := CacheNames("v1")
	for _, g := range gens {
		assert.Contains(t, []string{pre, run}, g, "generation %s should have been evicted", g)
	}
	assert.Equal(t, "v1", store.ActiveVersion())
}

func TestRegistrySkipWaitingPromotion(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)

	r := NewRegistry(RegistryConfig{
		Store:           store,
		Origin:          origin.server.URL,
		DeferActivation: true,
	})
	defer r.Close()

	require.NoError(t, r.Register(context.Background(), "v1"))
	require.Equal(t, "v1", r.Active().Version())

	require.NoError(t, r.Register(context.Background(), "v2"))
	require.NotNil(t, r.Waiting(), "update waits for the skip-waiting signal")
	assert.Equal(t, "v1", r.Active().Version())

	r.PostMessage(Message{Type: MsgSkipWaiting})
	assert.Eventually(t, func() bool {
		return r.Active() != nil && r.Active().Version() == "v2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, r.Waiting())
}

func TestRegistryFastActivation(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)

	r := NewRegistry(RegistryConfig{Store: store, Origin: origin.server.URL})
	defer r.Close()

	require.NoError(t, r.Register(context.Background(), "v1"))
	require.NoError(t, r.Register(context.Background(), "v2"))
	assert.Equal(t, "v2", r.Active().Version(), "new install takes over without waiting")
	assert.Nil(t, r.Waiting())
}

func TestRegistryInstallFailureKeepsPrevious(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)

	r := NewRegistry(RegistryConfig{Store: store, Origin: origin.server.URL})
	defer r.Close()
	require.NoError(t, r.Register(context.Background(), "v1"))

	origin.server.Close()
	err := r.Register(context.Background(), "v2")
	require.Error(t, err)
	assert.Equal(t, "v1", r.Active().Version(), "failed install leaves the old version in control")
}

func TestForeignSchemePassthrough(t *testing.T) {
	store := newTestStore(t)
	var sawScheme string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		sawScheme = req.URL.Scheme
		return nil, errors.New("unsupported protocol scheme")
	})
	u, _ := url.Parse("http://localhost")
	tr := NewTransport(store, base, u, "v1", nil)

	req, err := http.NewRequest(http.MethodGet, "chrome-extension://abcdef/script.js", nil)
	require.NoError(t, err)
	_, rtErr := tr.RoundTrip(req)
	assert.Error(t, rtErr, "foreign schemes are not intercepted, errors pass through")
	assert.Equal(t, "chrome-extension", sawScheme)
}

func TestAlwaysResolvesWithoutError(t *testing.T) {
	store := newTestStore(t)
	u, _ := url.Parse("http://localhost")
	tr := NewTransport(store, downTransport{}, u, "v1", nil)

	// empty caches, dead network: still a response, never an error
	resp := get(t, tr, "http://localhost/anything", map[string]string{"Sec-Fetch-Mode": "navigate"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body(t, resp), "offline")
}

func TestMirroredResponseIsFreshCopy(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")

	resp := get(t, w.Transport(), origin.server.URL+"/api/data", nil)
	got := body(t, resp)

	_, run := CacheNames("v1")
	e, ok := store.Get(run, origin.server.URL+"/api/data")
	require.True(t, ok)
	assert.Equal(t, got, string(e.Body), "returned and cached bodies both fully readable")
}

func TestNonGetNotMirrored(t *testing.T) {
	origin := newTestOrigin(t)
	store := newTestStore(t)
	w := installWorker(t, store, origin.server.URL, "v1")

	req, err := http.NewRequest(http.MethodPost, origin.server.URL+"/api/data", strings.NewReader("x"))
	require.NoError(t, err)
	resp, err := w.Transport().RoundTrip(req)
	require.NoError(t, err)
	_ = body(t, resp)

	_, run := CacheNames("v1")
	n := store.EntryCount(run)
	assert.Zero(t, n, "POST responses are not mirrored")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
