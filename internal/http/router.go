package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/store-composite/internal/http/handlers"
	httpMW "github.com/yungbote/store-composite/internal/http/middleware"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware
	ProductHandler *httpH.ProductHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Recovery(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	// Products
	if cfg.ProductHandler != nil {
		read, write := passThrough, passThrough
		if cfg.AuthMiddleware != nil {
			read = cfg.AuthMiddleware.RequireScope(ctxutil.ScopeProductRead)
			write = cfg.AuthMiddleware.RequireScope(ctxutil.ScopeProductWrite)
		}
		r.GET("/products/:id", read, cfg.ProductHandler.GetProduct)
		r.POST("/products", write, cfg.ProductHandler.CreateProduct)
		r.DELETE("/products/:id", write, cfg.ProductHandler.DeleteProduct)
	}

	return r
}

func passThrough(c *gin.Context) { c.Next() }
