package main

import (
	"github.com/joho/godotenv"

	"fieldnotes/internal/config"
	httpserver "fieldnotes/internal/http"
	"fieldnotes/internal/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	srv, err := httpserver.NewServer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create server")
	}

	log.WithField("port", cfg.Port).Info("server starting")
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
}
