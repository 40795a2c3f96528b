package mockservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"animate3d/internal/logging"
	"animate3d/internal/transport"
)

const (
	defaultStepsPerJob = 4
	defaultCredits     = 100
	defaultTokenTTL    = time.Hour
	maxUploadBytes     = 256 << 20
)

// Options configures a Server.
type Options struct {
	ClientID     string
	ClientSecret string
	StepsPerJob  int
	Credits      float64
	TokenTTL     time.Duration
	Logger       *slog.Logger
}

// Server answers the service API from a Store.
type Server struct {
	store  *Store
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds a Server and seeds the account and stock models.
func New(ctx context.Context, store *Store, opts Options) (*Server, error) {
	if opts.StepsPerJob <= 0 {
		opts.StepsPerJob = defaultStepsPerJob
	}
	if opts.Credits <= 0 {
		opts.Credits = defaultCredits
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if err := store.seedAccount(ctx, opts.Credits); err != nil {
		return nil, err
	}
	if err := store.seedModels(ctx); err != nil {
		return nil, err
	}

	s := &Server{
		store:  store,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "mockservice"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /oauth/token", s.handleToken)
	s.mux.HandleFunc("PUT /blob/{key...}", s.handleBlobPut)
	s.mux.HandleFunc("GET /blob/{key...}", s.handleBlobGet)

	s.mux.HandleFunc("GET /upload", s.authorized(s.handleUploadURL))
	s.mux.HandleFunc("POST /process", s.authorized(s.handleProcess))
	s.mux.HandleFunc("GET /status/{rid}", s.authorized(s.handleStatus))
	s.mux.HandleFunc("GET /list", s.authorized(s.handleList))
	s.mux.HandleFunc("GET /list/{statuses}", s.authorized(s.handleList))
	s.mux.HandleFunc("GET /download/{rid}", s.authorized(s.handleDownload))
	s.mux.HandleFunc("GET /character/listModels", s.authorized(s.handleListModels))
	s.mux.HandleFunc("GET /character/getModelUploadUrl", s.authorized(s.handleModelUploadURL))
	s.mux.HandleFunc("POST /character/storeModel", s.authorized(s.handleStoreModel))
	s.mux.HandleFunc("DELETE /character/deleteModel/{id}", s.authorized(s.handleDeleteModel))
	s.mux.HandleFunc("GET /account/creditBalance", s.authorized(s.handleCredits))
	return s, nil
}

// Handler returns the request router with request logging applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if id := r.Header.Get(transport.HeaderRequestID); id != "" {
			rec.Header().Set(transport.HeaderRequestID, id)
		}
		s.mux.ServeHTTP(rec, r)
		s.logger.Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
			logging.String("request_id", r.Header.Get(transport.HeaderRequestID)),
		)
	})
}

// Serve listens on bind until ctx is done. ready, when set, receives the
// bound address once the listener is open.
func (s *Server) Serve(ctx context.Context, bind string, ready func(addr string)) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("mock listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("mock service listening",
		logging.String(logging.FieldEventType, "mock_listening"),
		logging.String("address", listener.Addr().String()),
	)
	if ready != nil {
		ready(listener.Addr().String())
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mock shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// authorized rejects requests without a live bearer token.
func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		valid, err := s.store.tokenValid(r.Context(), token, nowMillis())
		if err != nil {
			s.internalError(w, err)
			return
		}
		if !valid {
			writeError(w, http.StatusUnauthorized, "unauthorized", "token expired or unknown")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if id != s.opts.ClientID || secret != s.opts.ClientSecret || id == "" {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	token := uuid.NewString()
	expires := time.Now().Add(s.opts.TokenTTL)
	if err := s.store.insertToken(r.Context(), token, expires.UnixMilli()); err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(s.opts.TokenTTL / time.Second),
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	logging.ErrorWithContext(s.logger, "mock request failed", "mock_request_failed", logging.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

// baseURL is the absolute address clients used to reach this server.
func baseURL(r *http.Request) blobURLs {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return blobURLs(scheme + "://" + r.Host)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code any, message string) {
	writeJSON(w, status, map[string]any{"code": code, "message": message})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
