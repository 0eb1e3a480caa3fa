package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/cipheragg/internal/http/handlers"
	httpMW "github.com/yungbote/cipheragg/internal/http/middleware"
	"github.com/yungbote/cipheragg/internal/observability"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

type RouterConfig struct {
	// ServiceName names the server spans; empty disables request tracing.
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string

	HealthHandler    *httpH.HealthHandler
	AggregateHandler *httpH.AggregateHandler
}

// NewRouter builds the read-only admin surface.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Aggregates
	if cfg.AggregateHandler != nil {
		r.GET("/aggregates/:subject", cfg.AggregateHandler.GetAggregate)
		r.GET("/aggregates/:subject/contributions", cfg.AggregateHandler.ListContributions)
		r.GET("/aggregates/:subject/contributions/:id", cfg.AggregateHandler.GetContribution)
	}

	return r
}
