package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"fieldnotes/internal/config"
	"fieldnotes/internal/logger"
	"fieldnotes/internal/pipeline"
	"fieldnotes/internal/report"
	"fieldnotes/internal/storage"
	"fieldnotes/internal/transcribe"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
}

func NewServer(cfg config.Config, log *logger.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	fm, err := storage.NewFileManager(cfg.DataDir, cfg.MaxUploadBytes, cfg.MaxImages)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	backend, err := transcribe.NewBackend(cfg.Transcriber, log)
	if err != nil {
		return nil, fmt.Errorf("init transcriber: %w", err)
	}

	reports := report.NewGenerator(log)
	coordinator := pipeline.NewCoordinator(store, backend, reports, log)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS())

	api := NewAPI(cfg, fm, store, coordinator, reports, log)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}
