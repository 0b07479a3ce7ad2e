package main

import (
	"campaign-optimizer/internal/app/server"
	"campaign-optimizer/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogFormat)
	server.Run(cfg)
}
