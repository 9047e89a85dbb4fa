package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
	"docbridge/internal/kv"
	"docbridge/internal/metrics"
	"docbridge/internal/store"
	"docbridge/internal/users"
	"docbridge/internal/worker"
)

type fixture struct {
	srv    *httptest.Server
	bridge *worker.Pool
	sqlite *dbpool.SQLite
}

func newFixture(t *testing.T, wcfg worker.Config, withKV bool) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	pcfg := domain.PoolConfig{MaxConnections: 4, MinConnections: 1, SelectionTimeout: time.Second}

	sq, err := dbpool.OpenSQLite(ctx, dbpool.SQLiteDSN(filepath.Join(t.TempDir(), "api.db")), pcfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(sq.DB()))

	bridge, err := worker.NewPool(wcfg, worker.WithMetrics(metrics.NewBridge(reg)))
	require.NoError(t, err)

	deps := Deps{
		Users:    users.NewService(store.NewSQLiteRepo(sq), bridge, users.WithSerializedWrites(8)),
		Pools:    []dbpool.Pool{sq},
		Bridge:   bridge,
		Gatherer: reg,
		Logger:   zerolog.Nop(),
	}
	if withKV {
		mr := miniredis.RunT(t)
		rd, err := dbpool.ConnectRedis(ctx, dbpool.RedisOptions{Addr: mr.Addr()}, pcfg, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = rd.Close(ctx) })
		deps.KV = kv.NewService(rd, bridge)
		deps.Pools = append(deps.Pools, rd)
	}

	srv := httptest.NewServer(NewServer(deps))
	t.Cleanup(func() {
		srv.Close()
		_ = bridge.Shutdown(ctx)
		_ = sq.Close(ctx)
	})
	return &fixture{srv: srv, bridge: bridge, sqlite: sq}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("content-type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), false)
	resp, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReady(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), false)

	resp, body := f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ready"])

	require.NoError(t, f.sqlite.Close(context.Background()))
	resp, body = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, false, body["ready"])
}

func TestUsersCRUD(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), false)

	resp, body := f.do(t, http.MethodPost, "/users/", `{"name":"Ada","email":"ada@example.com","age":36}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	resp, body = f.do(t, http.MethodGet, "/users/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ada", body["name"])
	assert.EqualValues(t, 36, body["age"])

	resp, body = f.do(t, http.MethodPut, "/users/"+id, `{"age":37}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "updated", body["status"])

	_, body = f.do(t, http.MethodGet, "/users/"+id, "")
	assert.EqualValues(t, 37, body["age"])
	assert.Equal(t, "ada@example.com", body["email"])

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/users/", nil)
	require.NoError(t, err)
	lresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var list []domain.User
	require.NoError(t, json.NewDecoder(lresp.Body).Decode(&list))
	lresp.Body.Close()
	assert.Len(t, list, 1)

	resp, body = f.do(t, http.MethodDelete, "/users/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "deleted", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/users/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/users/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsers_BadInput(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), false)

	resp, _ := f.do(t, http.MethodPost, "/users/", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/users/", `{"name":"A","email":"nope","age":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields, _ := body["fields"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "age")

	resp, _ = f.do(t, http.MethodPut, "/users/usr_missing", `{"age":500}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUsers_PoolExhausted(t *testing.T) {
	f := newFixture(t, worker.Config{Workers: 1, QueueSize: 1}, false)

	release := make(chan struct{})
	defer close(release)
	block := func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	}
	_, err := worker.Submit(f.bridge, block)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.bridge.Stats().Busy == 1 }, time.Second, 5*time.Millisecond)
	_, err = worker.Submit(f.bridge, block)
	require.NoError(t, err)

	resp, _ := f.do(t, http.MethodGet, "/users/", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestUsers_OperationTimeout(t *testing.T) {
	f := newFixture(t, worker.Config{Workers: 1, QueueSize: 4, OperationTimeout: 50 * time.Millisecond}, false)

	release := make(chan struct{})
	defer close(release)
	_, err := worker.Submit(f.bridge, func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	})
	require.NoError(t, err)

	resp, _ := f.do(t, http.MethodGet, "/users/", "")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestKV(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), true)

	resp, _ := f.do(t, http.MethodGet, "/kv/cache/greeting", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/kv/cache/greeting?value=hello&ttl=60", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["cached"])

	_, body = f.do(t, http.MethodGet, "/kv/cache/greeting", "")
	assert.Equal(t, "hello", body["value"])

	resp, _ = f.do(t, http.MethodPost, "/kv/cache/greeting?value=x&ttl=soon", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/kv/records/7?name=Ada", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, body = f.do(t, http.MethodPost, "/kv/records/7?name=Ada&email=ada@example.com", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["created"])
	_, body = f.do(t, http.MethodGet, "/kv/records/7", "")
	assert.Equal(t, map[string]any{"name": "Ada", "email": "ada@example.com"}, body)

	_, body = f.do(t, http.MethodPost, "/kv/queue/jobs?item=a", "")
	assert.EqualValues(t, 1, body["length"])
	_, body = f.do(t, http.MethodPost, "/kv/queue/jobs?item=b", "")
	assert.EqualValues(t, 2, body["length"])

	_, body = f.do(t, http.MethodPost, "/kv/queue/jobs/pop", "")
	assert.Equal(t, "a", body["item"])
	_, body = f.do(t, http.MethodPost, "/kv/queue/jobs/pop", "")
	assert.Equal(t, "b", body["item"])
	_, body = f.do(t, http.MethodPost, "/kv/queue/jobs/pop", "")
	assert.Contains(t, body, "item")
	assert.Nil(t, body["item"])
}

func TestKV_DisabledWithoutRedis(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), false)
	resp, _ := f.do(t, http.MethodGet, "/kv/cache/greeting", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, worker.DefaultConfig(), false)
	f.do(t, http.MethodGet, "/users/", "")

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
