package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leafguard/internal/bootstrap"
	"leafguard/internal/transport/http/response"
)

const aliveMessage = "Hello, I am alive"

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Ping is the liveness probe. It never touches the model or dependencies.
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, aliveMessage)
}

// Check reports readiness, including optional cache and broker connections.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := gin.H{}
	allOK := true
	if h.app.Redis != nil {
		status := h.checkRedis(ctx)
		deps["redis"] = status
		allOK = allOK && status.OK
	}
	if h.app.MQConn != nil {
		status := h.checkRabbitMQ()
		deps["rabbitmq"] = status
		allOK = allOK && status.OK
	}

	report := gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"model":        h.modelReport(),
		"dependencies": deps,
	}
	if !allOK {
		response.ErrorWithData(c, http.StatusServiceUnavailable, response.CodeDependencyUnhealthy, "dependency unhealthy", report)
		return
	}
	response.OK(c, report)
}

func (h *HealthHandler) modelReport() gin.H {
	report := gin.H{"fingerprint": h.app.ModelFingerprint}
	if c := h.app.Classifier; c != nil {
		spec := c.InputSpec()
		report["num_classes"] = c.NumClasses()
		report["input"] = gin.H{
			"name":     spec.Name,
			"layout":   spec.Layout,
			"height":   spec.Height,
			"width":    spec.Width,
			"channels": spec.Channels,
		}
	}
	return report
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
