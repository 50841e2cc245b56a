package offline

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/talkincode/tinypos/pkg/metrics"
)

// staticExtensions classifies requests whose destination headers are absent.
var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".mjs": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".ico": true, ".webp": true,
	".woff": true, ".woff2": true, ".ttf": true,
}

// captured is a fully drained network response. Draining once and handing
// out fresh readers is what lets one response be both returned and mirrored.
type captured struct {
	status int
	header http.Header
	body   []byte
}

func (c *captured) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        http.StatusText(c.status),
		StatusCode:    c.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        c.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Request:       req,
	}
}

// A strategy tries to resolve a request, returning ok=false to pass control
// to the next strategy in the chain.
type strategy func(req *http.Request) (*http.Response, bool)

// Transport resolves every http(s) request to exactly one of: a network
// response, a cached response, or the offline fallback page. Requests on
// foreign schemes pass through to the base transport untouched.
type Transport struct {
	base     http.RoundTripper
	store    *Store
	origin   *url.URL
	precache string
	runtime  string
	manifest map[string]bool
	group    singleflight.Group
}

// NewTransport builds the request resolver for one cache version.
func NewTransport(store *Store, base http.RoundTripper, origin *url.URL, version string, manifest []string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	pre, run := CacheNames(version)
	paths := make(map[string]bool, len(manifest))
	for _, p := range manifest {
		paths[p] = true
	}
	return &Transport{
		base:     base,
		store:    store,
		origin:   origin,
		precache: pre,
		runtime:  run,
		manifest: paths,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		// browser-extension style schemes fall through untouched
		return t.base.RoundTrip(req)
	}

	for _, strat := range t.classify(req) {
		if resp, ok := strat(req); ok {
			return resp, nil
		}
	}

	// Only reachable when the precache was never populated: keep the
	// no-error guarantee with a synthesized response.
	metrics.IncrCounter("offline_unresolved")
	zap.L().Warn("offline: request unresolved, serving synthesized fallback",
		zap.String("url", req.URL.String()))
	c := &captured{
		status: http.StatusServiceUnavailable,
		header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		body:   []byte("offline\n"),
	}
	return c.response(req), nil
}

// classify maps a request to its resolution chain. Each request falls into
// exactly one policy.
func (t *Transport) classify(req *http.Request) []strategy {
	switch {
	case isNavigation(req):
		// network-first with offline fallback
		return []strategy{t.fromNetwork, t.fromOfflinePage}
	case t.isStaticAsset(req):
		// cache-first
		return []strategy{t.fromCache, t.fromNetwork, t.fromOfflinePage}
	default:
		// network-first with runtime-cache fallback
		return []strategy{t.fromNetwork, t.fromCache, t.fromOfflinePage}
	}
}

// isNavigation reports whether the request is a top-level document load.
func isNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	accept := req.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

// isStaticAsset reports whether the request targets an application-shell or
// static resource: the path is in the precache manifest, or the request is
// classified image/style/script.
func (t *Transport) isStaticAsset(req *http.Request) bool {
	if t.manifest[req.URL.Path] {
		return true
	}
	switch req.Header.Get("Sec-Fetch-Dest") {
	case "image", "style", "script":
		return true
	}
	return staticExtensions[strings.ToLower(path.Ext(req.URL.Path))]
}

// fromNetwork issues the live request and mirrors a copy of cacheable
// responses into the runtime cache. Mirror failures are non-fatal.
func (t *Transport) fromNetwork(req *http.Request) (*http.Response, bool) {
	c, err := t.fetch(req)
	if err != nil {
		zap.L().Debug("offline: network fetch failed",
			zap.String("url", req.URL.String()), zap.Error(err))
		return nil, false
	}
	metrics.IncrCounter("offline_network")
	if req.Method == http.MethodGet && c.status < http.StatusBadRequest {
		entry := &Entry{
			URL:    req.URL.String(),
			Status: c.status,
			Header: c.header.Clone(),
			Body:   c.body,
		}
		if err := t.store.Put(t.runtime, entry.URL, entry); err != nil {
			zap.L().Debug("offline: runtime cache write failed",
				zap.String("url", entry.URL), zap.Error(err))
		}
	}
	return c.response(req), true
}

// fromCache looks the exact request URL up in the precache, then the runtime
// cache.
func (t *Transport) fromCache(req *http.Request) (*http.Response, bool) {
	e, gen, ok := t.store.Match(req.URL.String(), t.precache, t.runtime)
	if !ok {
		return nil, false
	}
	metrics.IncrCounter("offline_cache_hit")
	return e.Response(req, gen), true
}

// fromOfflinePage serves the cached offline fallback document.
func (t *Transport) fromOfflinePage(req *http.Request) (*http.Response, bool) {
	key := t.resolveOrigin(OfflinePage)
	e, gen, ok := t.store.Match(key, t.precache, t.runtime)
	if !ok {
		return nil, false
	}
	metrics.IncrCounter("offline_fallback")
	zap.L().Debug("offline: serving fallback page", zap.String("for", req.URL.String()))
	return e.Response(req, gen), true
}

// fetch performs the network request, draining the body. Concurrent GETs for
// the same URL share one upstream fetch.
func (t *Transport) fetch(req *http.Request) (*captured, error) {
	if req.Method != http.MethodGet {
		return t.doFetch(req)
	}
	v, err, _ := t.group.Do(req.URL.String(), func() (interface{}, error) {
		return t.doFetch(req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*captured), nil
}

func (t *Transport) doFetch(req *http.Request) (*captured, error) {
	return drainFetch(t.base, req)
}

// drainFetch performs one request and drains the body so copies can be
// handed out freely afterwards.
func drainFetch(rt http.RoundTripper, req *http.Request) (*captured, error) {
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &captured{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// resolveOrigin turns a manifest path into its absolute cache key.
func (t *Transport) resolveOrigin(p string) string {
	u := *t.origin
	u.Path = p
	u.RawQuery = ""
	return u.String()
}
