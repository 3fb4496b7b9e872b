// Package devserver is a local streaming endpoint for exercising clients.
//
// It speaks the same protocol the client consumes: GET /api/query with
// query, request_id and an optional retry_attempt, answered by an event
// stream of status events followed by one result. Answers are cached by
// request_id, so a repeated or concurrent request for the same id replays
// the recorded events instead of computing them again. Failures can be
// injected to watch the client back off and reconnect.
package devserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fwojciec/pulse"
	pulsejson "github.com/fwojciec/pulse/json"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of request_ids remembered.
const DefaultCacheSize = 1024

// Answerer computes the answer to a query, reporting progress through emit.
// It must finish with exactly one EventResult or return an error.
type Answerer interface {
	Answer(ctx context.Context, query string, emit func(pulse.Event)) error
}

// AnswererFunc adapts a function to [Answerer].
type AnswererFunc func(ctx context.Context, query string, emit func(pulse.Event)) error

// Answer calls f.
func (f AnswererFunc) Answer(ctx context.Context, query string, emit func(pulse.Event)) error {
	return f(ctx, query, emit)
}

// Server serves the streaming query endpoint.
type Server struct {
	answerer  Answerer
	cacheSize int
	failFirst int
	dropFirst int
	log       *slog.Logger

	mu      sync.Mutex // serializes lookup-or-create on the cache
	entries *lru.Cache[string, *entry]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	router  chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithCacheSize sets how many request_ids are remembered.
func WithCacheSize(n int) Option {
	return func(s *Server) { s.cacheSize = n }
}

// WithFailFirst rejects attempts with retry_attempt < n with 503.
func WithFailFirst(n int) Option {
	return func(s *Server) { s.failFirst = n }
}

// WithDropFirst ends the stream right after the first event for attempts
// with retry_attempt < n, as if the connection dropped.
func WithDropFirst(n int) Option {
	return func(s *Server) { s.dropFirst = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server that answers queries with a.
func New(a Answerer, opts ...Option) (*Server, error) {
	s := &Server{
		answerer:  a,
		cacheSize: DefaultCacheSize,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	entries, err := lru.New[string, *entry](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}
	s.entries = entries
	s.ctx, s.cancel = context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))
	r.Use(s.logRequests)
	r.Get("/api/query", s.handleQuery)
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close cancels running answers and waits for them to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	id := q.Get("request_id")
	if query == "" || id == "" {
		http.Error(w, "query and request_id are required", http.StatusBadRequest)
		return
	}
	attempt := 0
	if v := q.Get("retry_attempt"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid retry_attempt", http.StatusBadRequest)
			return
		}
		attempt = n
	}
	log := s.log.With("request_id", id, "attempt", attempt)

	if attempt < s.failFirst {
		log.Info("injecting failure")
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	e, created := s.lookup(id)
	if created {
		log.Info("computing answer")
		s.wg.Add(1)
		go s.compute(e, query)
	} else {
		log.Info("replaying answer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	drop := attempt < s.dropFirst
	next := 0
	for {
		events, done, changed := e.since(next)
		for _, ev := range events {
			if err := writeSSE(w, ev.name, ev.data); err != nil {
				log.Warn("failed to write event", "error", err)
				return
			}
			flusher.Flush()
			next++
			if drop {
				log.Info("injecting drop")
				return
			}
		}
		if done {
			return
		}
		select {
		case <-changed:
		case <-r.Context().Done():
			log.Debug("client went away")
			return
		}
	}
}

// lookup returns the entry for id, creating it when it is new.
func (s *Server) lookup(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries.Get(id); ok {
		return e, false
	}
	e := newEntry()
	s.entries.Add(id, e)
	return e, true
}

// compute runs the answerer detached from any one request, so a client that
// disconnects and retries finds the work still going.
func (s *Server) compute(e *entry, query string) {
	defer s.wg.Done()
	var gotResult bool
	err := s.answerer.Answer(s.ctx, query, func(evt pulse.Event) {
		if gotResult {
			return
		}
		name, data, err := encode(evt)
		if err != nil {
			s.log.Warn("dropping unencodable event", "error", err)
			return
		}
		_, gotResult = evt.(pulse.EventResult)
		e.append(name, data, gotResult)
	})
	if gotResult {
		return
	}
	if err == nil {
		err = pulse.ErrUnexpectedEOF
	}
	data, encErr := pulsejson.EncodeError(err.Error())
	if encErr != nil {
		data = []byte(`{"message":"internal error"}`)
	}
	s.log.Warn("answer failed", "error", err)
	e.append(pulsejson.EventError, string(data), true)
}

func encode(evt pulse.Event) (string, string, error) {
	var (
		name string
		data []byte
		err  error
	)
	switch e := evt.(type) {
	case pulse.EventStatus:
		name = pulsejson.EventStatus
		data, err = pulsejson.EncodeStatus(e.Message)
	case pulse.EventResult:
		name = pulsejson.EventResult
		data, err = pulsejson.EncodeResult(e.Result)
	case pulse.EventUnknown:
		name, data = e.Name, []byte(e.Data)
	default:
		err = fmt.Errorf("unsupported event %T", evt)
	}
	return name, string(data), err
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
