package httpio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/domain"
)

type fakeService struct {
	mu       sync.Mutex
	rounds   []outcomeDTO
	idx      int
	balance  string
	ok       bool
	bets     []betRequest
	refresh  atomic.Int32
	betCalls atomic.Int32
	failBet  bool
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/outcomes/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.rounds) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		cur := f.rounds[f.idx]
		if f.idx < len(f.rounds)-1 {
			f.idx++
		}
		_ = json.NewEncoder(w).Encode(cur)
	})
	mux.HandleFunc("/balance", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, _ = w.Write([]byte(`{"balance":"` + f.balance + `","ok":` + map[bool]string{true: "true", false: "false"}[f.ok] + `}`))
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f.refresh.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/bets", func(w http.ResponseWriter, r *http.Request) {
		f.betCalls.Add(1)
		if f.failBet {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"botao nao encontrado"}`))
			return
		}
		var req betRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.bets = append(f.bets, req)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"accepted":true,"confirmed":true,"elapsed_ms":42}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL + "/",
		Token:        "secret",
		Timeout:      2 * time.Second,
		PollInterval: 5 * time.Millisecond,
		RateLimit:    1000,
		RetryCount:   2,
	})
}

func TestSourceEmitsNewRoundsOnly(t *testing.T) {
	f := &fakeService{rounds: []outcomeDTO{
		{RoundID: "a", Multiplier: domain.D("1.50")},
		{RoundID: "a", Multiplier: domain.D("1.50")},
		{RoundID: "b", Multiplier: domain.D("2.30")},
		{RoundID: "b", Multiplier: domain.D("2.30")},
		{RoundID: "c", Multiplier: domain.D("1.01")},
	}}
	src := NewSource(newTestClient(t, f))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// "a" 是启动时的当前轮，不输出
	o, err := src.NextOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", o.RoundID)
	assert.True(t, o.Multiplier.Equal(domain.D("2.3")))
	assert.False(t, o.At.IsZero())

	o, err = src.NextOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", o.RoundID)

	// 之后不再有新轮次
	short, cancel2 := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel2()
	_, err = src.NextOutcome(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceBalanceAndRefresh(t *testing.T) {
	f := &fakeService{balance: "1234.56", ok: true}
	src := NewSource(newTestClient(t, f))
	ctx := context.Background()

	bal, ok, err := src.ReadBalance(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, bal.Equal(domain.D("1234.56")))

	f.mu.Lock()
	f.ok = false
	f.mu.Unlock()
	_, ok, err = src.ReadBalance(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, src.Refresh(ctx))
	assert.Equal(t, int32(1), f.refresh.Load())
}

func TestActuatorPlaceBet(t *testing.T) {
	f := &fakeService{}
	act := NewActuator(newTestClient(t, f))

	rcpt, err := act.PlaceBet(context.Background(), domain.D("7.87"), domain.D("1.99"), 1)
	require.NoError(t, err)
	assert.True(t, rcpt.Accepted)
	assert.True(t, rcpt.Confirmed)
	assert.Equal(t, 42*time.Millisecond, rcpt.Elapsed)
	require.Len(t, f.bets, 1)
	assert.True(t, f.bets[0].Amount.Equal(domain.D("7.87")))
	assert.Equal(t, 1, f.bets[0].Slot)
}

func TestActuatorDoesNotRetryBets(t *testing.T) {
	f := &fakeService{failBet: true}
	act := NewActuator(newTestClient(t, f))

	_, err := act.PlaceBet(context.Background(), domain.D("1"), domain.D("2"), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(1), f.betCalls.Load())
}

func TestDecodesBodyRegardlessOfContentType(t *testing.T) {
	var mu sync.Mutex
	body := `{"balance":"1000.00","ok":true}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/balance":
			mu.Lock()
			b := body
			mu.Unlock()
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(b))
		case "/bets":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte(`{"accepted":true,"confirmed":false}`))
		}
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second, RateLimit: 1000})
	ctx := context.Background()

	bal, ok, err := NewSource(c).ReadBalance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, bal.Equal(domain.D("1000")))

	rcpt, err := NewActuator(c).PlaceBet(ctx, domain.D("5"), domain.D("1.99"), 1)
	require.NoError(t, err)
	assert.True(t, rcpt.Accepted)
	assert.False(t, rcpt.Confirmed)

	// 内容不是 JSON 时返回错误，不当作“读不到余额”
	mu.Lock()
	body = `<html>oops</html>`
	mu.Unlock()
	_, ok, err = NewSource(c).ReadBalance(ctx)
	require.Error(t, err)
	assert.False(t, ok)
}
