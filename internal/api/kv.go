package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"docbridge/internal/domain"
	"docbridge/internal/kv"
)

// The /kv handlers take their inputs from the query string.

func (s *Server) setCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("value") {
		writeError(w, r, &domain.ValidationError{Fields: map[string]string{"value": "field required"}})
		return
	}
	ttl := kv.DefaultTTL
	if raw := q.Get("ttl"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			writeError(w, r, &domain.ValidationError{Fields: map[string]string{"ttl": "should be a positive integer"}})
			return
		}
		ttl = time.Duration(secs) * time.Second
	}
	if err := s.kv.SetCache(r.Context(), chi.URLParam(r, "key"), q.Get("value"), ttl); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cached": true})
}

func (s *Server) getCache(w http.ResponseWriter, r *http.Request) {
	v, err := s.kv.GetCache(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": v})
}

func (s *Server) putRecord(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	missing := map[string]string{}
	for _, f := range []string{"name", "email"} {
		if q.Get(f) == "" {
			missing[f] = "field required"
		}
	}
	if len(missing) > 0 {
		writeError(w, r, &domain.ValidationError{Fields: missing})
		return
	}
	fields := map[string]string{"name": q.Get("name"), "email": q.Get("email")}
	if err := s.kv.PutRecord(r.Context(), chi.URLParam(r, "id"), fields); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"created": true})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	m, err := s.kv.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type enqueueResp struct {
	Enqueued bool  `json:"enqueued"`
	Length   int64 `json:"length"`
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("item") {
		writeError(w, r, &domain.ValidationError{Fields: map[string]string{"item": "field required"}})
		return
	}
	n, err := s.kv.Enqueue(r.Context(), chi.URLParam(r, "name"), q.Get("item"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResp{Enqueued: true, Length: n})
}

type dequeueResp struct {
	Item *string `json:"item"`
}

func (s *Server) dequeue(w http.ResponseWriter, r *http.Request) {
	item, ok, err := s.kv.Dequeue(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var resp dequeueResp
	if ok {
		resp.Item = &item
	}
	writeJSON(w, http.StatusOK, resp)
}
