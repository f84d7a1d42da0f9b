package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/orchestrator"
	"github.com/betbot/gocrash/pkg/commandqueue"
)

type fakeEngine struct {
	mu   sync.Mutex
	snap orchestrator.Snapshot
	subs []chan orchestrator.Snapshot
}

func (f *fakeEngine) Snapshot() orchestrator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeEngine) Subscribe(buffer int) (<-chan orchestrator.Snapshot, func()) {
	ch := make(chan orchestrator.Snapshot, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeEngine) push(s orchestrator.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
	for _, ch := range f.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (f *fakeEngine) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newTestServer(t *testing.T, token string) (*Server, *fakeEngine, *commandqueue.Queue) {
	t.Helper()
	q, err := commandqueue.Open(commandqueue.OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	eng := &fakeEngine{snap: orchestrator.Snapshot{
		State:     domain.StateAguardandoGatilho,
		LowRun:    3,
		NextLevel: domain.NS7,
		Sessao: orchestrator.SessaoState{
			SaldoAtual: decimal.NewFromInt(1000),
			HistoricoApostas: []orchestrator.HistoryEntry{
				{SessionID: "a", Outcome: domain.OutcomeWin},
				{SessionID: "b", Outcome: domain.OutcomeWin},
				{SessionID: "c", Outcome: domain.OutcomeBust},
			},
		},
	}}
	srv, err := New(Config{Token: token}, eng, q, nil)
	require.NoError(t, err)
	return srv, eng, q
}

func doJSON(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{}, &fakeEngine{}, nil, nil)
	assert.Error(t, err)
}

func TestStatusAndHistory(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	h := srv.Router()

	w := doJSON(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.EqualValues(t, 3, snap["low_run"])

	w = doJSON(t, h, http.MethodGet, "/api/history?limit=2", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Entries []orchestrator.HistoryEntry `json:"historico_apostas"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Entries, 2)
	assert.Equal(t, "b", hist.Entries[0].SessionID)
	assert.Equal(t, "c", hist.Entries[1].SessionID)
}

func TestCommandsEnqueue(t *testing.T) {
	srv, _, q := newTestServer(t, "")
	h := srv.Router()

	w := doJSON(t, h, http.MethodPost, "/api/commands", `{"command":"SAQUE","params":{"valor":"25.50"}}`, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	pending, err := q.Pending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "saque", pending[0].Name)
	assert.Equal(t, "25.50", pending[0].Params["valor"])

	w = doJSON(t, h, http.MethodGet, "/api/commands", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Pending []commandqueue.Command `json:"pending"`
		History []commandqueue.Command `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Pending, 1)
}

func TestCommandsRejectInvalid(t *testing.T) {
	srv, _, q := newTestServer(t, "")
	h := srv.Router()

	cases := []string{
		`{"command":"saque","params":{"valor":"-1"}}`,
		`{"command":"nivel","params":{"nivel":"NS4"}}`,
		`{"command":"explodir"}`,
		`not json`,
	}
	for _, body := range cases {
		w := doJSON(t, h, http.MethodPost, "/api/commands", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Equal(t, 0, q.PendingLen())
}

func TestTokenAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "s3cret")
	h := srv.Router()

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, h, http.MethodGet, "/api/status", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, h, http.MethodGet, "/api/status", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/api/status", "", "s3cret").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/api/status?token=s3cret", "", "").Code)
	// healthz 不需要 token
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/healthz", "", "").Code)
}

func TestHistoryEndpointsWithoutStore(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	w := doJSON(t, srv.Router(), http.MethodGet, "/api/sessions", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebsocketStream(t *testing.T) {
	srv, eng, _ := newTestServer(t, "")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first orchestrator.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 3, first.LowRun)

	require.Eventually(t, func() bool { return eng.subscribers() == 1 }, time.Second, 5*time.Millisecond)
	next := eng.Snapshot()
	next.LowRun = 5
	eng.push(next)

	var second orchestrator.Snapshot
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 5, second.LowRun)
}

func TestStartShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	srv.cfg.Addr = "127.0.0.1:0"
	addr, err := srv.Start()
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
