package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/moodlog/internal/auth"
	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/live"
	"github.com/hpungsan/moodlog/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the web server serves from.
type Deps struct {
	DB        *sql.DB
	Config    *config.Config
	Hub       *live.Hub
	Auth      auth.TokenAuthenticator
	Analyzer  ops.Analyzer
	Responder ops.Responder
	Version   string
}

// NewServer creates and configures the HTTP server for the moodlog dashboard and API.
func NewServer(deps Deps, bind string, port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open streams end when their subscriptions do
	if deps.Hub != nil {
		srv.RegisterOnShutdown(deps.Hub.Close)
	}
	return srv
}

// NewHandler builds the routed handler without binding a listener.
func NewHandler(deps Deps) http.Handler {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}
	return newHandlers(deps, NewRenderer(templateSub, deps.Version)).routes()
}

func (h *Handlers) routes() http.Handler {
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.HandleDashboard)

	mux.HandleFunc("POST /api/auth/signin", h.HandleSignIn)
	mux.HandleFunc("POST /api/auth/signout", h.HandleSignOut)
	mux.HandleFunc("GET /api/session", h.HandleSession)

	mux.HandleFunc("GET /api/entries", h.HandleListEntries)
	mux.HandleFunc("POST /api/entries", h.HandleAppend)
	mux.HandleFunc("GET /api/entries/stream", h.HandleStream)
	mux.HandleFunc("GET /api/entries/ws", h.HandleWebSocket)

	mux.HandleFunc("GET /api/timeline", h.HandleTimeline)
	mux.HandleFunc("GET /api/stats", h.HandleStats)
	mux.HandleFunc("GET /api/insights", h.HandleInsights)
	mux.HandleFunc("GET /api/tips", h.HandleTips)
	mux.HandleFunc("POST /api/ask", h.HandleAsk)
	mux.HandleFunc("GET /api/questions", h.HandleQuestions)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return securityHeaders(mux)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' https: data:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("moodlog running at http://%s", srv.Addr)
		if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
			log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
