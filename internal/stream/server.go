package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/store"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// EventLister is the read side of the event store.
type EventLister interface {
	ListEvents(ctx context.Context, f store.Filter) ([]store.Event, error)
	CountByLabel(ctx context.Context, f store.Filter) ([]store.LabelCount, error)
}

type Server struct {
	hub      *Hub
	gatherer prometheus.Gatherer
	events   EventLister
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewServer builds the HTTP surface: /ws for viewers, /metrics, /health and,
// when events is not nil, /api/events and /api/counts.
func NewServer(hub *Hub, gatherer prometheus.Gatherer, events EventLister, log logrus.FieldLogger) *Server {
	return &Server{
		hub:      hub,
		gatherer: gatherer,
		events:   events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithField("stage", "HTTP"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveViewer)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.events != nil {
		mux.HandleFunc("/api/events", s.serveEvents)
		mux.HandleFunc("/api/counts", s.serveCounts)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on '%s'", addr)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("Listening on %s", lis.Addr())
		errc <- srv.Serve(lis)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "http server failed")

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "http server shutdown failed")
		}
		<-errc
		return nil
	}
}

func (s *Server) serveViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(512)

	if !s.hub.Register(conn) {
		conn.Close()
		return
	}
	defer s.hub.Unregister(conn)

	// Viewers only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}

	events, err := s.events.ListEvents(r.Context(), f)
	if err != nil {
		s.log.Errorf("Listing events failed: %v", err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, newEventJSON(ev))
	}
	writeJSON(w, out)
}

func (s *Server) serveCounts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	counts, err := s.events.CountByLabel(r.Context(), f)
	if err != nil {
		s.log.Errorf("Counting events failed: %v", err)
		http.Error(w, "failed to count events", http.StatusInternalServerError)
		return
	}

	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.Label] = c.Count
	}
	writeJSON(w, out)
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		SessionID: q.Get("session"),
		Label:     q.Get("label"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.Errorf("invalid limit '%s'", v)
		}
		f.Limit = n
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.Errorf("invalid since '%s', expected RFC 3339", v)
		}
		f.Since = t
	}

	return f, nil
}

type eventJSON struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Label        string    `json:"label"`
	Confidence   float32   `json:"confidence"`
	Box          [4]int    `json:"box"`
	FrameSeq     uint64    `json:"frame_seq"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newEventJSON(ev store.Event) eventJSON {
	return eventJSON{
		ID:           ev.ID,
		SessionID:    ev.SessionID,
		Label:        ev.Label,
		Confidence:   ev.Confidence,
		Box:          [4]int{ev.Box.Min.X, ev.Box.Min.Y, ev.Box.Max.X, ev.Box.Max.Y},
		FrameSeq:     ev.FrameSeq,
		SnapshotPath: ev.SnapshotPath,
		CreatedAt:    ev.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
