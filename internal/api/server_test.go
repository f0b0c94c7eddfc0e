package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsqprocess/dsqprocess/internal/health"
	"github.com/dsqprocess/dsqprocess/internal/metrics"
	"github.com/dsqprocess/dsqprocess/internal/orchestrator"
	"github.com/dsqprocess/dsqprocess/internal/presets"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
	"github.com/dsqprocess/dsqprocess/internal/registry"
)

type fakeMonitor struct {
	mu      sync.Mutex
	entries []registry.Entry
	minutes []int
	err     error
}

func (f *fakeMonitor) Start(folder, exe string, minutes int, opts ...orchestrator.StartOption) (orchestrator.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return orchestrator.Handle{}, f.err
	}
	f.minutes = append(f.minutes, minutes)
	pid := 100 + len(f.entries)
	f.entries = append(f.entries, registry.Entry{PID: pid, Name: exe, Folder: folder, Minutes: minutes})
	return orchestrator.Handle{ID: "id", PID: pid, Name: exe}, nil
}

func (f *fakeMonitor) Tracked() []registry.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.Entry(nil), f.entries...)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStartAndListProcesses(t *testing.T) {
	mon := &fakeMonitor{}
	s := New(Options{Monitor: mon, DefaultMinutes: 15})

	w := do(t, s.Handler(), "POST", "/processes", `{"folder":"Foo","executable":"foo.exe"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var h orchestrator.Handle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, 100, h.PID)

	w = do(t, s.Handler(), "POST", "/processes", `{"folder":"Bar","executable":"bar.exe","minutes":0}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []int{15, 0}, mon.minutes, "explicit zero overrides the default")

	w = do(t, s.Handler(), "GET", "/processes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ProcessesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = do(t, s.Handler(), "GET", "/processes/101", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s.Handler(), "GET", "/processes/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmptyProcessListIsArray(t *testing.T) {
	s := New(Options{Monitor: &fakeMonitor{}})
	w := do(t, s.Handler(), "GET", "/processes", "")
	assert.JSONEq(t, `{"count":0,"processes":[]}`, w.Body.String())
}

func TestStartErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid", procerr.InvalidInput("place", "executable name is empty"), http.StatusBadRequest},
		{"template missing", procerr.New(procerr.KindNotFound, "place", os.ErrNotExist), http.StatusNotFound},
		{"spawn", procerr.New(procerr.KindIO, "launch", errors.New("exec format error")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(Options{Monitor: &fakeMonitor{err: tc.err}})
			w := do(t, s.Handler(), "POST", "/processes", `{"folder":"x","executable":"x.exe"}`)
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}

	s := New(Options{Monitor: &fakeMonitor{}})
	w := do(t, s.Handler(), "POST", "/processes", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	hc := health.New(health.DefaultThresholds())
	s := New(Options{Monitor: &fakeMonitor{}, Health: hc})

	w := do(t, s.Handler(), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	for i := 0; i < 5; i++ {
		hc.RecordSweepFailure(errors.New("snapshot failed"))
	}
	w = do(t, s.Handler(), "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPresetsEndpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, presets.OfficialFile), []byte(
		`[{"name":"Genshin Impact","executable":"GenshinImpact.exe","path":"Genshin"},
		  {"name":"Valorant","executable":"VALORANT.exe","path":"Riot"}]`), 0o644))

	s := New(Options{Monitor: &fakeMonitor{}, Presets: presets.NewStore(dir)})
	w := do(t, s.Handler(), "GET", "/presets?q=genshin", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []presets.Preset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Genshin Impact", list[0].Name)
}

func TestMetricsEndpoint(t *testing.T) {
	c := metrics.NewCollector("dsq")
	c.Tracked(3)
	s := New(Options{Monitor: &fakeMonitor{}, Metrics: c.Handler()})

	w := do(t, s.Handler(), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dsq_tracked_processes 3")
}

func TestRateLimit(t *testing.T) {
	s := New(Options{Monitor: &fakeMonitor{}, RateLimit: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, s.Handler(), "GET", "/processes", "").Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestLimiterPrune(t *testing.T) {
	l := NewLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(time.Minute)
	l.Allow("b")

	assert.Equal(t, 1, l.Prune(30*time.Second))
	assert.Len(t, l.limiters, 1)
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", bytes.NewReader(nil))
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", clientKey(req))
}
