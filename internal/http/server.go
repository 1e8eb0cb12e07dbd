package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/store-composite/internal/config"
)

type Server struct {
	Engine *gin.Engine
	srv    *stdhttp.Server
}

func NewServer(httpCfg config.HTTPConfig, cfg RouterConfig) *Server {
	engine := NewRouter(cfg)
	return &Server{
		Engine: engine,
		srv: &stdhttp.Server{
			Addr:              httpCfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: httpCfg.ReadHeaderTimeout.Duration,
			IdleTimeout:       httpCfg.IdleTimeout.Duration,
			WriteTimeout:      0,
		},
	}
}

func (s *Server) Addr() string { return s.srv.Addr }

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
