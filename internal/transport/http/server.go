package http

import (
	"github.com/gin-gonic/gin"

	"leafguard/internal/bootstrap"
	"leafguard/internal/transport/http/handler"
	"leafguard/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), gin.Recovery(), middleware.CORS())
	if app.Metrics != nil {
		router.Use(middleware.Metrics(app.Metrics))
		router.GET(app.Config.Metrics.Path, gin.WrapH(app.Metrics.Handler()))
	}

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/ping", healthHandler.Ping)
	router.GET("/healthz", healthHandler.Check)

	predictHandler := handler.NewPredictHandler(app.Predictions, app.Config.MaxUploadBytes())
	router.POST("/predict", predictHandler.Predict)

	return router
}
