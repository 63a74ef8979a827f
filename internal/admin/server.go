// HTTP admin surface and live feed for the tracker
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"courierwatch/internal/fleet"
	"courierwatch/internal/ingest"
	"courierwatch/internal/logging"
	"courierwatch/internal/risk"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/tracker"
	"courierwatch/internal/trail"
)

const maxBodyBytes = 1 << 20

// Tracker is the coordinator surface used by the admin server.
type Tracker interface {
	ingest.Enqueuer
	AssignRoute(telemetry.RouteAssignment) error
	ClearRoute(id string) error
	Latest() *tracker.Publication
	History(id string) []trail.Point
	Summary() tracker.Summary
}

// Server serves the JSON API, the live feed and the HTML board.
type Server struct {
	tracker Tracker
	feed    *Feed
	tpl     *template.Template
	mux     *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

// NewServer wires the routes. feed may be nil to disable /feed.
func NewServer(t Tracker, feed *Feed) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{tracker: t, feed: feed, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /reports", s.handleReports)
	s.mux.HandleFunc("PUT /routes/{id}", s.handleAssignRoute)
	s.mux.HandleFunc("DELETE /routes/{id}", s.handleClearRoute)
	s.mux.HandleFunc("GET /entities", s.handleEntities)
	s.mux.HandleFunc("GET /entities/{id}", s.handleEntity)
	s.mux.HandleFunc("GET /alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /trail/{id}", s.handleTrail)
	s.mux.HandleFunc("GET /summary", s.handleSummary)
	if s.feed != nil {
		s.mux.Handle("GET /feed", s.feed)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("admin server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	pub := s.tracker.Latest()
	data := struct {
		Summary tracker.Summary
		Alerts  []risk.Alert
	}{
		Summary: s.tracker.Summary(),
		Alerts:  pub.Alerts,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render index", "err", err)
	}
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := ingest.HandlePayload(r.Context(), "http", s.tracker, body)
	switch {
	case errors.Is(err, telemetry.ErrMalformed):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusAccepted
	if st.Dropped > 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]int{"accepted": st.Accepted, "dropped": st.Dropped})
}

func (s *Server) handleAssignRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var wire telemetry.WireRouteAssignment
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if wire.EntityID == "" {
		wire.EntityID = id
	}
	if wire.EntityID != id {
		writeError(w, http.StatusBadRequest, errors.New("entityId does not match path"))
		return
	}
	a, err := wire.Assignment()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.tracker.AssignRoute(a); err != nil {
		s.routeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleClearRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearRoute(r.PathValue("id")); err != nil {
		s.routeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) routeError(w http.ResponseWriter, err error) {
	if errors.Is(err, fleet.ErrUnknownEntity) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.tracker.Latest().Entities
	if entities == nil {
		entities = []fleet.EntityState{}
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.tracker.Latest().Entity(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fleet.ErrUnknownEntity)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.tracker.Latest().Alerts
	out := make([]risk.Alert, 0, len(alerts))
	want := r.URL.Query().Get("severity")
	var sev risk.Severity
	if want != "" {
		if err := sev.UnmarshalText([]byte(want)); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	for _, a := range alerts {
		if want == "" || a.Severity == sev {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.tracker.Latest().Entity(id); !ok {
		writeError(w, http.StatusNotFound, fleet.ErrUnknownEntity)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.History(id))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Summary())
}
