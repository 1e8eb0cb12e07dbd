package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/store-composite/internal/config"
	httpapi "github.com/yungbote/store-composite/internal/http"
	httpH "github.com/yungbote/store-composite/internal/http/handlers"
	httpMW "github.com/yungbote/store-composite/internal/http/middleware"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

func wireHTTP(log *logger.Logger, cfg *config.Config, svc Services) (*httpapi.Server, error) {
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	authMiddleware, err := httpMW.NewAuthMiddleware(log, httpMW.AuthOptions{
		Enabled:  cfg.Auth.Enabled,
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return nil, err
	}

	return httpapi.NewServer(cfg.HTTP, httpapi.RouterConfig{
		Log:            log,
		ServiceName:    cfg.Tracing.ServiceName,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		AuthMiddleware: authMiddleware,
		ProductHandler: httpH.NewProductHandler(svc.Store, cfg.HTTP.MaxRequestBytes),
		HealthHandler:  httpH.NewHealthHandler(svc.Store),
	}), nil
}
