package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/engine"
	"github.com/arijanluiken/tradescript/internal/executor"
	"github.com/arijanluiken/tradescript/pkg/config"
	"github.com/arijanluiken/tradescript/pkg/database"
)

// Messages for API actor communication
type (
	StartServerMsg struct{}
	StopServerMsg  struct{}
	StatusMsg      struct{}
)

// Executor runs script requests. *executor.Pool implements it.
type Executor interface {
	Execute(ctx context.Context, req *engine.Request) (*engine.Response, error)
	Status() ([]executor.Status, error)
	Logs(limit int) ([]executor.ExecutionLog, error)
}

// Store persists scripts and run history. *database.DB implements it.
type Store interface {
	SaveScript(script *database.Script) error
	GetScript(name string) (*database.Script, error)
	ListScripts() ([]*database.Script, error)
	DeleteScript(name string) error
	ListRuns(scriptName string, limit int) ([]*database.Run, error)
}

// APIActor provides REST API and WebSocket endpoints
type APIActor struct {
	config     *config.Config
	logger     zerolog.Logger
	server     *http.Server
	router     chi.Router
	wsUpgrader websocket.Upgrader

	engine   *engine.Engine
	executor Executor
	store    Store
}

// New creates a new API actor. store may be nil, which disables the script
// and run routes.
func New(cfg *config.Config, eng *engine.Engine, exec Executor, store Store, logger zerolog.Logger) *APIActor {
	return &APIActor{
		config:   cfg,
		logger:   logger,
		engine:   eng,
		executor: exec,
		store:    store,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Receive handles incoming messages
func (a *APIActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		a.onStarted(ctx)
	case actor.Stopped:
		a.onStopped(ctx)
	case StartServerMsg:
		a.onStartServer(ctx)
	case StopServerMsg:
		a.onStopServer(ctx)
	case StatusMsg:
		a.onStatus(ctx)
	default:
		a.logger.Debug().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received message")
	}
}

func (a *APIActor) onStarted(ctx *actor.Context) {
	a.logger.Info().Msg("API actor started")

	// Auto-start the server
	ctx.Send(ctx.PID(), StartServerMsg{})
}

func (a *APIActor) onStopped(ctx *actor.Context) {
	a.logger.Info().Msg("API actor stopped")
	a.shutdown()
}

func (a *APIActor) onStartServer(ctx *actor.Context) {
	if a.server != nil {
		return
	}
	a.logger.Info().Int("port", a.config.API.Port).Msg("Starting API server")

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.API.Port),
		Handler: a.Handler(),
		// websocket connections outlive any single request timeout
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.server = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	a.logger.Info().Msg("API server started successfully")
}

func (a *APIActor) onStopServer(ctx *actor.Context) {
	a.shutdown()
}

func (a *APIActor) shutdown() {
	if a.server == nil {
		return
	}

	a.logger.Info().Msg("Stopping API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("Error stopping API server")
	} else {
		a.logger.Info().Msg("API server stopped successfully")
	}
	a.server = nil
}

func (a *APIActor) onStatus(ctx *actor.Context) {
	ctx.Respond(map[string]interface{}{
		"server_running": a.server != nil,
		"port":           a.config.API.Port,
		"timestamp":      time.Now(),
	})
}

// Handler returns the HTTP handler serving every route
func (a *APIActor) Handler() http.Handler {
	if a.router == nil {
		a.setupRouter()
	}
	return a.router
}

func (a *APIActor) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if a.config.API.Timeout > 0 {
			r.Use(middleware.Timeout(a.config.API.Timeout))
		}

		r.Get("/health", a.handleHealth)
		r.Get("/openapi.json", a.handleOpenAPISpec)

		r.Post("/execute", a.handleExecute)
		r.Post("/check", a.handleCheck)
		r.Get("/builtins", a.handleGetBuiltins)

		r.Route("/executors", func(r chi.Router) {
			r.Get("/", a.handleGetExecutors)
			r.Get("/logs", a.handleGetExecutorLogs)
		})

		r.Route("/scripts", func(r chi.Router) {
			r.Get("/", a.handleGetScripts)
			r.Post("/", a.handleSaveScript)
			r.Get("/{name}", a.handleGetScript)
			r.Put("/{name}", a.handleSaveScript)
			r.Delete("/{name}", a.handleDeleteScript)
			r.Post("/{name}/run", a.handleRunScript)
			r.Get("/{name}/runs", a.handleGetRuns)
		})

		r.Get("/runs", a.handleGetRuns)
	})

	// WebSocket endpoint
	r.HandleFunc("/ws", a.handleWebSocket)

	a.router = r
}
