package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// ThrottleConfig limits how often one client may call a handler.
type ThrottleConfig struct {
	// Max is the number of requests allowed per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to the remote IP.
	KeyFunc func(*http.Request) string
}

type window struct {
	start time.Time
	count int
}

type throttle struct {
	cfg ThrottleConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newThrottle(cfg ThrottleConfig) *throttle {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RemoteIP
	}
	return &throttle{cfg: cfg, now: time.Now, windows: make(map[string]*window)}
}

// take counts a request for key and reports when the current window ends
// and whether the request fits.
func (t *throttle) take(key string) (time.Time, bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[key]
	if !ok || now.Sub(w.start) >= t.cfg.Window {
		w = &window{start: now}
		t.windows[key] = w
	}
	reset := w.start.Add(t.cfg.Window)
	if w.count >= t.cfg.Max {
		return reset, false
	}
	w.count++
	return reset, true
}

func (t *throttle) evict() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, w := range t.windows {
		if now.Sub(w.start) >= t.cfg.Window {
			delete(t.windows, k)
		}
	}
}

// Throttle rejects requests over the limit with 429 and a JSON error body.
// Expired windows are evicted until ctx is done. A Max of zero disables
// the limit.
func Throttle(ctx context.Context, cfg ThrottleConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	t := newThrottle(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.evict()
			}
		}
	}()
	return t.middleware
}

func (t *throttle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reset, ok := t.take(t.cfg.KeyFunc(r))
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		wait := time.Until(reset)
		if wait < time.Second {
			wait = time.Second
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)

		e := jx.GetEncoder()
		defer jx.PutEncoder(e)
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(false)
		e.FieldStart("error")
		e.Str("too many requests")
		e.ObjEnd()
		_, _ = w.Write(e.Bytes())
	})
}

// RemoteIP returns the client address without the port.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
