package server

import (
	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"
	"github.com/joeyliu6/weibodr-sync/internal/scheduler"

	"github.com/rs/zerolog"
)

// Server owns the background side of the application, currently just the
// auto sync scheduler. The HTTP listener has its own lifecycle in main.
type Server struct {
	log    zerolog.Logger
	config *domain.Config

	scheduler scheduler.Service
}

func NewServer(log logger.Logger, config *domain.Config, scheduler scheduler.Service) *Server {
	return &Server{
		log:       log.With().Str("module", "server").Logger(),
		config:    config,
		scheduler: scheduler,
	}
}

func (s *Server) Start() error {
	s.scheduler.Start()
	return nil
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("Shutting down server")

	s.scheduler.Stop()
}
