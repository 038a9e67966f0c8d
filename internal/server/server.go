package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sw33tLie/rankbot/internal/utils"
	"github.com/sw33tLie/rankbot/pkg/bot"
	"github.com/sw33tLie/rankbot/pkg/metrics"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

type Server struct {
	Store    bot.Snapshots
	Registry *storage.Registry
	DB       *storage.DB
	Bot      *bot.Handler
	Metrics  *metrics.Metrics
	Username string
	Password string
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API Group
	mux.HandleFunc("POST /api/commands", s.basicAuth(s.handleCommand))
	mux.HandleFunc("GET /api/snapshot", s.basicAuth(s.handleSnapshot))
	mux.HandleFunc("GET /api/subscribers", s.basicAuth(s.handleSubscribers))
	mux.HandleFunc("GET /api/changes", s.basicAuth(s.handleChanges))

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		utils.Log.Infof("Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
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
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
