package main

import (
	"github.com/campusvolt/prepaid-engine/internal/config"
	"github.com/campusvolt/prepaid-engine/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
