package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/api"
	"github.com/arijanluiken/tradescript/internal/executor"
	"github.com/arijanluiken/tradescript/pkg/config"
)

// Messages for supervisor actor communication
type (
	StartMessage  struct{}
	StopMessage   struct{}
	StatusMessage struct{}
	ErrorMessage  struct{ Error error }
)

// Supervisor manages the executor pool and the API actor
type Supervisor struct {
	config     *config.Config
	logger     zerolog.Logger
	components *Components

	actors       *actor.Engine
	pid          *actor.PID
	executorPIDs []*actor.PID
	pool         *executor.Pool
	apiActor     *actor.PID

	stopOnce sync.Once
}

// New creates a new supervisor actor
func New(cfg *config.Config, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		config: cfg,
		logger: logger.With().Str("actor", "supervisor").Logger(),
	}
}

// Start builds the shared components and starts the actor system. It
// returns once the executors and API actor are running. The system stops
// when ctx is done or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting supervisor actor system")

	components, err := Build(s.config, s.logger)
	if err != nil {
		return err
	}
	s.components = components

	engine, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		components.Close()
		return fmt.Errorf("failed to create actor engine: %w", err)
	}
	s.actors = engine

	s.pid = engine.Spawn(func() actor.Receiver {
		return s
	}, "supervisor")

	if _, err := engine.Request(s.pid, StartMessage{}, 10*time.Second).Result(); err != nil {
		s.Stop()
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info().Msg("Supervisor actor system started successfully")
	return nil
}

// Stop stops every child actor and closes the database
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		if s.actors != nil && s.pid != nil {
			if _, err := s.actors.Request(s.pid, StopMessage{}, 10*time.Second).Result(); err != nil {
				s.logger.Error().Err(err).Msg("Failed to stop child actors")
			}
			s.actors.Stop(s.pid)
		}
		if s.components != nil {
			if err := s.components.Close(); err != nil {
				s.logger.Error().Err(err).Msg("Failed to close database")
			}
		}
		s.logger.Info().Msg("Supervisor stopped")
	})
}

// Pool returns the executor pool, nil before Start
func (s *Supervisor) Pool() *executor.Pool {
	return s.pool
}

// Status reports the state of the actor system
func (s *Supervisor) Status() (map[string]interface{}, error) {
	res, err := s.actors.Request(s.pid, StatusMessage{}, 5*time.Second).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	status, ok := res.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected status reply %T", res)
	}
	return status, nil
}

// Receive handles incoming messages
func (s *Supervisor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		s.logger.Info().Msg("Supervisor actor started")
	case actor.Stopped:
		s.logger.Info().Msg("Supervisor actor stopped")
	case actor.Initialized:
		s.logger.Debug().Msg("Supervisor actor initialized")
	case StartMessage:
		s.onStart(ctx)
	case StopMessage:
		s.onStop(ctx)
	case StatusMessage:
		s.onStatus(ctx)
	case ErrorMessage:
		s.logger.Error().Err(msg.Error).Msg("Received error from child actor")
	default:
		s.logger.Warn().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received unknown message")
	}
}

func (s *Supervisor) onStart(ctx *actor.Context) {
	s.logger.Info().Int("workers", s.config.Script.Workers).Msg("Starting child actors")

	workers := s.config.Script.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		name := "executor-" + strconv.Itoa(i)
		pid := ctx.SpawnChild(func() actor.Receiver {
			return executor.New(name, s.components.Engine, s.components.DB,
				s.logger.With().Str("actor", name).Logger())
		}, "executor", actor.WithID(strconv.Itoa(i)))
		s.executorPIDs = append(s.executorPIDs, pid)
	}
	s.pool = executor.NewPool(ctx.Engine(), s.executorPIDs, requestTimeout(s.config))

	s.apiActor = ctx.SpawnChild(func() actor.Receiver {
		return api.New(s.config, s.components.Engine, s.pool, s.components.DB,
			s.logger.With().Str("actor", "api").Logger())
	}, "api")

	ctx.Respond(true)
}

func (s *Supervisor) onStop(ctx *actor.Context) {
	s.logger.Info().Msg("Stopping child actors")

	if s.apiActor != nil {
		ctx.Engine().Stop(s.apiActor)
		s.apiActor = nil
	}
	for _, pid := range s.executorPIDs {
		ctx.Engine().Stop(pid)
	}
	s.executorPIDs = nil

	ctx.Respond(true)
}

func (s *Supervisor) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"timestamp":       time.Now(),
		"executor_actors": len(s.executorPIDs),
		"api_actor_alive": s.apiActor != nil,
		"feed":            "none",
		"builtins":        len(s.components.Registry.Names()),
		"schema_version":  s.components.DB.SchemaVersion(),
	}
	if s.components.Feed != nil {
		status["feed"] = s.components.Feed.GetName()
	}

	s.logger.Debug().Interface("status", status).Msg("Supervisor status")
	ctx.Respond(status)
}

// requestTimeout bounds one pool request: long enough for the script
// timeout plus fetching bars
func requestTimeout(cfg *config.Config) time.Duration {
	timeout := cfg.Script.Timeout + 10*time.Second
	if cfg.API.Timeout > timeout {
		timeout = cfg.API.Timeout
	}
	return timeout
}
