package control

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

// Defaults for Options.
const (
	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultMaxRequestBytes = 64 << 10
)

// errorBody is the body of every non-200 response.
const errorBody = "\r\n"

// Dispatcher executes a decoded command and returns the response lines.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd protocol.Command) ([]string, error)
}

// Relay is a Dispatcher that forwards commands to a scheduler loop over a
// pair of channels and waits for the matching response.
type Relay struct {
	mu        sync.Mutex
	commands  chan<- protocol.Command
	responses <-chan []string
}

// NewRelay creates a Relay. Every command sent on commands must be answered
// by exactly one value on responses.
func NewRelay(commands chan<- protocol.Command, responses <-chan []string) *Relay {
	return &Relay{commands: commands, responses: responses}
}

// Dispatch sends cmd and blocks until the response arrives or ctx is done.
func (r *Relay) Dispatch(ctx context.Context, cmd protocol.Command) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-r.responses:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Options configures a Server.
type Options struct {
	// ReadTimeout bounds reading one request.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration

	// MaxRequestBytes caps the size of a request including headers.
	MaxRequestBytes int64

	Logger zerolog.Logger
}

// Server accepts control connections and serves one request per
// connection. Connections are handled one at a time, in accept order.
type Server struct {
	opts       Options
	log        zerolog.Logger
	dispatcher Dispatcher
	router     chi.Router
}

// New creates a Server that hands decoded commands to d.
func New(d Dispatcher, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = DefaultMaxRequestBytes
	}

	s := &Server{
		opts:       opts,
		log:        opts.Logger.With().Str("component", "control").Logger(),
		dispatcher: d,
	}
	s.router = s.routes()
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID, s.recoverer, postOnly, exactTarget)

	r.Post(protocol.CommandPath, s.handleCommand)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed)
	})
	return r
}

// Serve accepts connections on ln until ctx is done. The listener is
// closed when Serve returns. A request already accepted is answered even
// if ctx is done while it is being dispatched.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("control server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info().Msg("control server stopped")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn().Err(err).Msg("accept timeout")
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.handleConn(context.WithoutCancel(ctx), conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	w := newResponseWriter()
	req, err := s.readRequest(conn)
	if err != nil {
		var re *requestError
		code := http.StatusBadRequest
		if errors.As(err, &re) {
			code = re.status
		}
		log.Debug().Err(err).Int("status", code).Msg("malformed request")
		writeError(w, code)
	} else {
		s.router.ServeHTTP(w, req.WithContext(log.WithContext(ctx)))
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		log.Debug().Err(err).Msg("set write deadline")
	}
	if _, err := conn.Write(w.Bytes()); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

// requestError is returned by readRequest when the request cannot be
// parsed. status is derived from whatever part of the request line arrived.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

// readRequest parses one request from conn. A request without a
// Content-Length header gets whatever bytes arrived with its headers as
// its body.
func (s *Server) readRequest(conn net.Conn) (*http.Request, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	br := bufio.NewReader(io.TeeReader(io.LimitReader(conn, s.opts.MaxRequestBytes), &raw))
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, &requestError{status: lineStatus(raw.Bytes()), err: err}
	}

	if req.ContentLength > 0 || len(req.TransferEncoding) > 0 {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, &requestError{status: http.StatusBadRequest, err: fmt.Errorf("read body: %w", err)}
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		return req, nil
	}

	if n := br.Buffered(); n > 0 {
		rest, _ := br.Peek(n)
		req.Body = io.NopCloser(bytes.NewReader(bytes.Clone(rest)))
		req.ContentLength = int64(n)
	}
	return req, nil
}

// lineStatus answers a request that could not be parsed by looking at its
// request line alone: a method other than POST gets 405, a target other
// than the command path gets 404, anything else 400.
func lineStatus(raw []byte) int {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	method, rest, ok := strings.Cut(strings.TrimSuffix(string(line), "\r"), " ")
	if !ok || !isToken(method) {
		return http.StatusBadRequest
	}
	if method != http.MethodPost {
		return http.StatusMethodNotAllowed
	}
	if target, _, _ := strings.Cut(rest, " "); target != "" && target != protocol.CommandPath {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// isToken reports whether s is a non-empty HTTP token (RFC 9110 5.6.2).
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	data, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug().Err(err).Msg("read body")
		writeError(w, http.StatusBadRequest)
		return
	}
	data = trimPadding(data)
	if len(data) == 0 {
		log.Debug().Msg("empty body")
		writeError(w, http.StatusBadRequest)
		return
	}

	cmd, err := protocol.Unmarshal(data)
	if err != nil {
		log.Debug().Err(err).Msg("invalid command")
		writeError(w, http.StatusBadRequest)
		return
	}

	log.Debug().Str("command", cmd.Kind()).Msg("dispatching")
	resp, err := s.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		log.Warn().Err(err).Str("command", cmd.Kind()).Msg("dispatch failed")
		writeError(w, http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	for _, part := range resp {
		_, _ = io.WriteString(w, part)
	}
}

// trimPadding cuts data at the first NUL byte and drops surrounding
// whitespace.
func trimPadding(data []byte) []byte {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return bytes.TrimSpace(data)
}

// postOnly rejects every method other than POST before routing.
func postOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			zerolog.Ctx(r.Context()).Debug().Str("method", r.Method).Msg("method not allowed")
			writeError(w, http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// exactTarget rejects any request target other than the bare command path,
// query strings included.
func exactTarget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.RequestURI != protocol.CommandPath {
			zerolog.Ctx(r.Context()).Debug().Str("target", r.RequestURI).Msg("unknown target")
			writeError(w, http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := zerolog.Ctx(r.Context())
		if base.GetLevel() == zerolog.Disabled {
			base = &s.log
		}
		log := base.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				zerolog.Ctx(r.Context()).Error().Interface("panic", rec).Msg("handler panicked")
				if rw, ok := w.(*responseWriter); ok {
					rw.reset()
				}
				writeError(w, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, code int) {
	w.WriteHeader(code)
	_, _ = io.WriteString(w, errorBody)
}
