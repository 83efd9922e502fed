// Package handlers exposes the HTTP trigger for bot runs.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cadence/internal/orchestrator"
	"cadence/pkg/logging"
	"cadence/pkg/middleware"
	"cadence/pkg/version"
)

const logTailLines = 50

// TaskTrigger starts background runs and reports their status.
type TaskTrigger interface {
	Start(action orchestrator.Action, opts orchestrator.Options) error
	Status() orchestrator.Status
}

type BotHandler struct {
	trigger TaskTrigger
	logFile string
	logger  logging.Logger
	started time.Time
}

func NewBotHandler(trigger TaskTrigger, logFile string, logger logging.Logger) *BotHandler {
	return &BotHandler{trigger: trigger, logFile: logFile, logger: logger, started: time.Now()}
}

// Register mounts the bot routes on r. /health and /metrics come from the service router.
func (h *BotHandler) Register(r gin.IRoutes) {
	r.GET("/", h.Index)
	r.GET("/run-task", h.RunTask)
	r.POST("/run-task", h.RunTask)
	r.GET("/status", h.Status)
	r.GET("/logs", h.Logs)
}

func (h *BotHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "cadence",
		"version": version.Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"endpoints": []string{
			"GET|POST /run-task?action=auto|standalone|thread|engage|test&force=true&topic=...",
			"GET /status",
			"GET /logs",
			"GET /health",
			"GET /metrics",
		},
	})
}

// RunTask starts a run in the background and returns immediately.
func (h *BotHandler) RunTask(c *gin.Context) {
	log := middleware.GetContextLogger(c, h.logger)

	action, err := orchestrator.ParseAction(c.Query("action"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	opts := orchestrator.Options{Topic: c.Query("topic")}
	if raw := c.Query("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "force must be a boolean"})
			return
		}
		opts.Force = force
	}

	if err := h.trigger.Start(action, opts); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			log.WithField("action", string(action)).Info("Run requested while another is in progress")
			c.JSON(http.StatusConflict, gin.H{
				"status":  "already_running",
				"message": "a run is already in progress",
			})
			return
		}
		log.WithError(err).Error("Failed to start run")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	log.WithFields(logging.Fields{
		"action": string(action),
		"force":  opts.Force,
		"topic":  opts.Topic,
	}).Info("Run started")
	c.JSON(http.StatusAccepted, gin.H{
		"status": "started",
		"action": string(action),
	})
}

func (h *BotHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.trigger.Status())
}

// Logs returns the tail of the log file.
func (h *BotHandler) Logs(c *gin.Context) {
	if h.logFile == "" {
		c.JSON(http.StatusOK, gin.H{"logs": []string{}, "message": "file logging disabled"})
		return
	}
	lines, total, err := logging.TailFile(h.logFile, logTailLines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusOK, gin.H{"logs": []string{}, "message": "no log file yet"})
			return
		}
		h.logger.WithError(err).WithField("path", h.logFile).Error("Failed to read log file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines, "total_lines": total})
}
