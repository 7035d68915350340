package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func decodeStatus(t *testing.T, body []byte) (string, map[string]string) {
	t.Helper()
	var (
		status string
		checks = make(map[string]string)
	)
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			v, err := d.Str()
			status = v
			return err
		case "checks":
			return d.ObjBytes(func(d *jx.Decoder, name []byte) error {
				v, err := d.Str()
				checks[string(name)] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return status, checks
}

func serve(h *Health, kind Kind) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Handler(kind)(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestHandler_Liveness(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		err        error
		wantCode   int
		wantStatus string
	}{
		{name: "Passing", runs: 3, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "BelowThreshold", runs: 2, err: errors.New("refused"), wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "Failing", runs: 3, err: errors.New("refused"), wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.Register(Liveness, Check{Name: "db", Func: PingCheck(&mockPinger{err: tt.err})})
			for range tt.runs {
				h.probes[Liveness][0].run(context.Background())
			}

			w := serve(h, Liveness)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			status, checks := decodeStatus(t, w.Body.Bytes())
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "ping: refused", checks["db"])
			}
		})
	}
}

func TestHandler_Readiness(t *testing.T) {
	h := New()
	pinger := &mockPinger{}
	h.Register(Readiness, Check{Name: "postgres", Func: PingCheck(pinger), FailureThreshold: 1})

	w := serve(h, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	_, checks := decodeStatus(t, w.Body.Bytes())
	assert.Contains(t, checks, "_readiness")

	h.SetReady(true)
	assert.True(t, h.IsReady())
	assert.Equal(t, http.StatusOK, serve(h, Readiness).Code)

	pinger.err = errors.New("down")
	h.probes[Readiness][0].run(context.Background())
	assert.False(t, h.IsReady())
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, Readiness).Code)

	// Liveness is unaffected by readiness failures.
	assert.Equal(t, http.StatusOK, serve(h, Liveness).Code)
}

func TestProbe_Recovery(t *testing.T) {
	p := newProbe(Check{Name: "x", Func: func(context.Context) error { return nil }, SuccessThreshold: 2})
	p.observe(errors.New("a"))
	p.observe(errors.New("b"))
	p.observe(errors.New("c"))
	_, failed := p.failure()
	require.True(t, failed)

	p.observe(nil)
	_, failed = p.failure()
	assert.True(t, failed, "one success is below the threshold")

	p.observe(nil)
	_, failed = p.failure()
	assert.False(t, failed)
}

func TestStartStop(t *testing.T) {
	h := New()
	calls := make(chan struct{}, 10)
	h.Register(Liveness, Check{Name: "tick", Func: func(context.Context) error {
		calls <- struct{}{}
		return nil
	}})

	h.Start(context.Background(), time.Hour)
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("check did not run on start")
	}
	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
