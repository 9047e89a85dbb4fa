package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"docbridge/internal/dbpool"
	"docbridge/internal/domain"
	"docbridge/internal/kv"
	"docbridge/internal/users"
	"docbridge/internal/worker"
)

type Deps struct {
	Users  *users.Service
	KV     *kv.Service // nil disables the /kv routes
	Pools  []dbpool.Pool
	Bridge *worker.Pool

	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger
	EnableDebug bool
}

type Server struct {
	r      *chi.Mux
	users  *users.Service
	kv     *kv.Service
	pools  []dbpool.Pool
	bridge *worker.Pool
}

func NewServer(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		hlog.NewHandler(d.Logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Msg("request")
		}),
		middleware.Recoverer,
	)

	s := &Server{r: r, users: d.Users, kv: d.KV, pools: d.Pools, bridge: d.Bridge}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.createUser)
		r.Get("/", s.listUsers)
		r.Get("/{id}", s.getUser)
		r.Put("/{id}", s.updateUser)
		r.Delete("/{id}", s.deleteUser)
	})

	if s.kv != nil {
		r.Route("/kv", func(r chi.Router) {
			r.Post("/cache/{key}", s.setCache)
			r.Get("/cache/{key}", s.getCache)
			r.Post("/records/{id}", s.putRecord)
			r.Get("/records/{id}", s.getRecord)
			r.Post("/queue/{name}", s.enqueue)
			r.Post("/queue/{name}/pop", s.dequeue)
		})
	}

	// Debug routes (pprof)
	if d.EnableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		r.Handle("/debug/pprof/block", pprof.Handler("block"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type readyResp struct {
	Ready  bool           `json:"ready"`
	Pools  []dbpool.Stats `json:"pools"`
	Bridge *worker.Stats  `json:"bridge,omitempty"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	resp := readyResp{Ready: true, Pools: make([]dbpool.Stats, 0, len(s.pools))}
	for _, p := range s.pools {
		if p.State() != dbpool.StateReady {
			resp.Ready = false
		}
		resp.Pools = append(resp.Pools, p.Stats())
	}
	if s.bridge != nil {
		st := s.bridge.Stats()
		resp.Bridge = &st
	}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type errorResp struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps a service error to a status code. Causes are passed
// through so clients see what the store reported.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve     *domain.ValidationError
		pt     *dbpool.PoolTimeoutError
		failed *worker.OperationFailed
	)
	logger := hlog.FromRequest(r)

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
	case errors.As(err, &pt):
		logger.Warn().Err(err).Msg("connection pool timeout")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "database unavailable"})
	case errors.Is(err, worker.ErrPoolExhausted), errors.Is(err, worker.ErrPoolClosed):
		logger.Warn().Err(err).Msg("worker pool rejected request")
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
	case errors.Is(err, worker.ErrOperationTimeout):
		logger.Warn().Err(err).Msg("operation timed out")
		writeJSON(w, http.StatusGatewayTimeout, errorResp{Error: err.Error()})
	case errors.Is(err, worker.ErrCancelled):
		logger.Debug().Err(err).Msg("client went away")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: "request cancelled"})
	case errors.As(err, &failed):
		logger.Error().Err(failed.Cause).Msg("operation failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: failed.Cause.Error()})
	default:
		logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
