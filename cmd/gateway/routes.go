package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crosstalk-ai/gateway/internal/orchestrator"
	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/trace"
)

const defaultTraceListLimit = 20

type deps struct {
	svc        *orchestrator.Service
	repo       *session.Repository
	wsHandler  http.Handler
	traceStore *trace.Store
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/session", d.wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("GET /api/engines", d.handleEngines)
	mux.HandleFunc("GET /api/sessions", d.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", d.handleSession)
	registerTraceRoutes(mux, d.traceStore)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.svc.Engines())
}

// sessionView is the API shape of one live session.
type sessionView struct {
	ID        string            `json:"id"`
	Status    session.Status    `json:"status"`
	Languages []string          `json:"languages"`
	Primary   string            `json:"primary_language"`
	CreatedAt string            `json:"created_at"`
	Stats     session.Stats     `json:"stats"`
	Speakers  []session.Speaker `json:"speakers,omitempty"`
	Turns     []session.Turn    `json:"turns,omitempty"`
}

func (d deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	live := d.repo.All()
	views := make([]sessionView, 0, len(live))
	for _, sess := range live {
		views = append(views, newSessionView(sess, false))
	}
	writeJSON(w, map[string]any{"sessions": views, "total": len(views)})
}

func (d deps) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := d.repo.ByID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, newSessionView(sess, true))
}

func newSessionView(sess *session.Session, detailed bool) sessionView {
	v := sessionView{
		ID:        sess.ID,
		Status:    sess.Status(),
		Languages: sess.Config.CandidateLanguages,
		Primary:   sess.Config.PrimaryLanguage,
		CreatedAt: sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Stats:     sess.Stats(),
	}
	if detailed {
		v.Speakers = sess.Speakers()
		v.Turns = sess.Turns()
	}
	return v
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/conversations", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultTraceListLimit)
		offset := queryInt(r, "offset", 0)
		convs, total, err := store.ListConversations(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"conversations": convs, "total": total})
	})

	mux.HandleFunc("GET /api/traces/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		conv, exchanges, err := store.GetConversation(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"conversation": conv, "exchanges": exchanges})
	})

	mux.HandleFunc("GET /api/traces/conversations/{id}/exchanges/{exchangeId}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		ex, spans, err := store.GetExchange(r.PathValue("id"), r.PathValue("exchangeId"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"exchange": ex, "spans": spans})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
