package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"voice_verification/entity"
	"voice_verification/pkg/logger"
)

const traceName = "http-v1"

// NewRouter -.
func NewRouter(handler *gin.Engine, l logger.Interface, uc entity.VerificationUsecase, maxUploadBytes int64) {
	// Options
	handler.Use(gin.Logger())
	handler.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		l.Error("http - v1 - panic: %v", recovered)
		errorResponse(c, http.StatusInternalServerError, "internal error")
	}))

	// Swagger
	swaggerHandler := ginSwagger.DisablingWrapHandler(swaggerFiles.Handler, "DISABLE_SWAGGER_HTTP_HANDLER")
	handler.GET("/swagger/*any", swaggerHandler)

	// K8s probe
	handler.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Prometheus metrics
	handler.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Routers
	h := handler.Group("/")
	{
		newVerificationRoutes(h, uc, l, maxUploadBytes)
	}
}
