package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/engine"
	"github.com/arijanluiken/tradescript/pkg/database"
)

// Messages for executor actor communication
type (
	// ExecuteMsg asks an executor to run a request. The reply is an
	// *engine.Response.
	ExecuteMsg struct {
		Ctx     context.Context
		Request *engine.Request
	}
	StatusMsg       struct{}
	GetLogsMsg      struct{ Limit int }
	LogsResponseMsg struct{ Logs []ExecutionLog }
)

// ExecutionLog is one entry in an executor's log buffer
type ExecutionLog struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Status describes one executor actor
type Status struct {
	Executor  string    `json:"executor"`
	Executed  int       `json:"executed"`
	Failed    int       `json:"failed"`
	LastRun   time.Time `json:"last_run,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunStore records finished executions. *database.DB implements it.
type RunStore interface {
	SaveRun(run *database.Run) error
}

// Executor is an actor that runs scripts one at a time
type Executor struct {
	name   string
	engine *engine.Engine
	runs   RunStore
	logger zerolog.Logger

	executed int
	failed   int
	lastRun  time.Time

	// in-memory circular buffer
	logs    []ExecutionLog
	maxLogs int
}

// New creates an executor actor. runs may be nil.
func New(name string, eng *engine.Engine, runs RunStore, logger zerolog.Logger) *Executor {
	return &Executor{
		name:    name,
		engine:  eng,
		runs:    runs,
		logger:  logger,
		logs:    make([]ExecutionLog, 0),
		maxLogs: 100,
	}
}

// Receive handles incoming messages
func (x *Executor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		x.logger.Debug().Str("executor", x.name).Msg("Executor actor started")
	case actor.Stopped:
		x.logger.Debug().Str("executor", x.name).Msg("Executor actor stopped")
	case actor.Initialized:
	case ExecuteMsg:
		x.onExecute(ctx, msg)
	case StatusMsg:
		x.onStatus(ctx)
	case GetLogsMsg:
		x.onGetLogs(ctx, msg)
	default:
		x.logger.Warn().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received unknown message")
	}
}

func (x *Executor) onExecute(ctx *actor.Context, msg ExecuteMsg) {
	if msg.Request == nil {
		ctx.Respond(&engine.Response{Status: engine.StatusError, Message: "empty request"})
		return
	}
	runCtx := msg.Ctx
	if runCtx == nil {
		runCtx = context.Background()
	}

	resp := x.engine.Execute(runCtx, msg.Request)
	x.executed++
	x.lastRun = time.Now()

	logContext := map[string]interface{}{
		"id":          resp.ID,
		"script":      msg.Request.Script,
		"symbol":      msg.Request.Symbol,
		"duration_ms": resp.DurationMs,
	}
	if resp.OK() {
		x.addLog("info", "Script succeeded", logContext)
	} else {
		x.failed++
		logContext["errors"] = len(resp.Errors)
		x.addLog("error", resp.Message, logContext)
	}

	x.recordRun(msg.Request, resp)
	ctx.Respond(resp)
}

// recordRun stores the execution in run history. Storage failures are
// logged and never change the response.
func (x *Executor) recordRun(req *engine.Request, resp *engine.Response) {
	if x.runs == nil {
		return
	}

	run := &database.Run{
		ScriptName: req.Script,
		Symbol:     req.Symbol,
		Interval:   req.Interval,
		Status:     resp.Status,
		DurationMs: resp.DurationMs,
		Error:      resp.Message,
	}
	if resp.Data != nil {
		data, err := json.Marshal(resp.Data)
		if err != nil {
			x.logger.Warn().Err(err).Str("id", resp.ID).Msg("Failed to encode result")
		} else {
			run.Result = string(data)
		}
	}

	if err := x.runs.SaveRun(run); err != nil {
		x.logger.Warn().Err(err).Str("id", resp.ID).Msg("Failed to record run")
	}
}

func (x *Executor) onStatus(ctx *actor.Context) {
	ctx.Respond(Status{
		Executor:  x.name,
		Executed:  x.executed,
		Failed:    x.failed,
		LastRun:   x.lastRun,
		Timestamp: time.Now(),
	})
}

func (x *Executor) onGetLogs(ctx *actor.Context, msg GetLogsMsg) {
	limit := msg.Limit
	if limit <= 0 || limit > len(x.logs) {
		limit = len(x.logs)
	}

	logs := make([]ExecutionLog, limit)
	copy(logs, x.logs[len(x.logs)-limit:])

	ctx.Respond(LogsResponseMsg{Logs: logs})
}

func (x *Executor) addLog(level, message string, context map[string]interface{}) {
	x.logs = append(x.logs, ExecutionLog{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Context:   context,
	})
	if len(x.logs) > x.maxLogs {
		x.logs = x.logs[len(x.logs)-x.maxLogs:]
	}
}
