package livehttp

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adapilot/internal/execution"
	"adapilot/internal/generator"
	"adapilot/internal/manager"
	"adapilot/internal/signal"
	"adapilot/internal/store/execlog"
	"adapilot/internal/store/signallog"
	"adapilot/internal/tracker"
)

// PipelineFacade is what the HTTP layer needs from the composed pipeline.
// Implemented by the app's live service.
type PipelineFacade interface {
	GeneratorStatus() generator.StatusReport
	Health(ctx context.Context) manager.HealthSnapshot

	Signals() []*signal.TradingSignal
	Signal(id string) (*signal.TradingSignal, bool)
	TriggerPoll(ctx context.Context) generator.Outcome

	Execute(ctx context.Context, signalID string) (*execution.Result, error)
	PreflightSignal(ctx context.Context, signalID string) (*execution.PreflightReport, error)
	Cancel(signalID string) bool

	Transactions() []tracker.TransactionRecord
	Transaction(id string) (tracker.TransactionRecord, bool)
	Positions() []tracker.MonitoredPosition

	RecentExecutions(ctx context.Context, limit int) ([]execlog.Entry, error)
	RecentSignalLog(ctx context.Context, limit int) ([]signallog.Entry, error)
}

type Router struct {
	pipeline PipelineFacade
}

func NewRouter(p PipelineFacade) *Router {
	return &Router{pipeline: p}
}

// Register mounts the live routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/health", r.handleHealth)

	group.GET("/signals", r.handleSignals)
	group.GET("/signals/:id", r.handleSignalByID)
	group.GET("/signals/:id/preflight", r.handlePreflight)
	group.POST("/signals/:id/execute", r.handleExecute)
	group.POST("/signals/:id/cancel", r.handleCancel)
	group.POST("/poll", r.handlePoll)

	group.GET("/transactions", r.handleTransactions)
	group.GET("/transactions/:id", r.handleTransactionByID)
	group.GET("/positions", r.handlePositions)

	group.GET("/executions", r.handleExecutionLog)
	group.GET("/signal-log", r.handleSignalLog)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"generator": r.pipeline.GeneratorStatus()})
}

func (r *Router) handleHealth(c *gin.Context) {
	snap := r.pipeline.Health(c.Request.Context())
	status := http.StatusOK
	if snap.Overall == manager.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, snap)
}

func (r *Router) handleSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": r.pipeline.Signals()})
}

func (r *Router) handleSignalByID(c *gin.Context) {
	sig, ok := r.pipeline.Signal(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (r *Router) handlePreflight(c *gin.Context) {
	report, err := r.pipeline.PreflightSignal(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) handleExecute(c *gin.Context) {
	res, err := r.pipeline.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if !res.Success {
		// The caller branches on the error type; the HTTP status mirrors it.
		switch {
		case res.Error == nil:
			status = http.StatusInternalServerError
		case res.Error.Type == execution.ErrTypeValidation, res.Error.Type == execution.ErrTypeBalance:
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, res)
}

func (r *Router) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if r.pipeline.Cancel(id) {
		c.JSON(http.StatusOK, gin.H{"cancelled": true, "signal_id": id})
		return
	}
	c.JSON(http.StatusConflict, gin.H{
		"cancelled": false,
		"signal_id": id,
		"error":     "no cancellable execution for this signal",
	})
}

func (r *Router) handlePoll(c *gin.Context) {
	outcome := r.pipeline.TriggerPoll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (r *Router) handleTransactions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transactions": r.pipeline.Transactions()})
}

func (r *Router) handleTransactionByID(c *gin.Context) {
	rec, ok := r.pipeline.Transaction(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": r.pipeline.Positions()})
}

func (r *Router) handleExecutionLog(c *gin.Context) {
	entries, err := r.pipeline.RecentExecutions(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": entries})
}

func (r *Router) handleSignalLog(c *gin.Context) {
	entries, err := r.pipeline.RecentSignalLog(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": entries})
}

func queryLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 50
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 50
	}
	if n > 500 {
		n = 500
	}
	return n
}
