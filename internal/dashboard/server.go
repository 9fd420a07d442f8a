package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/metrics"
	"fimwatch/internal/report"

	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

// Server serves Sources over HTTP. All routes are GET.
type Server struct {
	sources Sources
	decoder *schema.Decoder
	mux     *http.ServeMux
}

// NewServer returns a Server reading from src.
func NewServer(src Sources) *Server {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)
	decoder.RegisterConverter(time.Time{}, func(s string) reflect.Value {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(t)
	})

	s := &Server{sources: src, decoder: decoder, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.serveIndex)
	s.mux.HandleFunc("GET /status", s.serveStatus)
	s.mux.HandleFunc("GET /baseline", s.serveBaseline)
	s.mux.HandleFunc("GET /history", s.serveHistory)
	s.mux.HandleFunc("GET /reports", s.serveReports)
	s.mux.HandleFunc("GET /logs", s.serveLogs)
	s.mux.Handle("GET /metrics", metrics.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Index is the document served at "/": the status summary together with the
// tail of the security log.
type Index struct {
	Status Summary  `json:"status"`
	Logs   []string `json:"logs"`
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.decode(r, &struct{}{}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sum, err := s.sources.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lines, err := s.sources.Logs(defaultLimit)
	if errors.Is(err, ErrNoLogFile) {
		lines = []string{}
	} else if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, Index{Status: sum, Logs: lines})
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.decode(r, &struct{}{}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sum, err := s.sources.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sum)
}

func (s *Server) serveBaseline(w http.ResponseWriter, r *http.Request) {
	var query struct {
		AsOf   time.Time `schema:"as_of"`
		Prefix string    `schema:"prefix"`
	}
	if err := s.decode(r, &query); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := s.sources.Baseline(r.Context(), query.AsOf, query.Prefix)
	if errors.Is(err, baseline.ErrNoBaseline) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) serveHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.decode(r, &struct{}{}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gens, err := s.sources.Store.History(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if gens == nil {
		gens = []baseline.Generation{}
	}
	writeJSON(w, gens)
}

func (s *Server) serveReports(w http.ResponseWriter, r *http.Request) {
	limit, err := s.decodeLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.sources.Journal == nil {
		http.Error(w, "no report journal configured", http.StatusNotFound)
		return
	}
	entries, err := s.sources.Journal.Tail(limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []report.Entry{}
	}
	writeJSON(w, entries)
}

func (s *Server) serveLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := s.decodeLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lines, err := s.sources.Logs(limit)
	if errors.Is(err, ErrNoLogFile) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string][]string{"logs": lines})
}

func (s *Server) decode(r *http.Request, dst interface{}) error {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err == nil {
		err = s.decoder.Decode(dst, q)
	}
	return err
}

func (s *Server) decodeLimit(r *http.Request) (int, error) {
	var query struct {
		Limit int `schema:"limit"`
	}
	if err := s.decode(r, &query); err != nil {
		return 0, err
	}
	switch {
	case query.Limit == 0:
		return defaultLimit, nil
	case query.Limit < 0 || query.Limit > maxLimit:
		return 0, fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	return query.Limit, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	log.WithFields(log.Fields{"path": r.URL.Path, "err": err}).Warn("dashboard: request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithField("err", err).Warn("dashboard: failed to write response")
	}
}

// ListenAndServe serves h on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.WithField("addr", addr).Info("dashboard listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("serve dashboard: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
