package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/thewans/streamgate/internal/config"
	"github.com/thewans/streamgate/internal/database"
	"github.com/thewans/streamgate/internal/server"
)

func main() {
	configPath := os.Getenv("STREAMGATE_CONFIG")
	if err := config.Load(configPath); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.Get()

	database.Initialize()

	if configPath != "" {
		watcher, err := config.NewFileWatcher(config.GetConfigManager(), configPath)
		if err != nil {
			log.Printf("Config hot-reload disabled: %v", err)
		} else if err := watcher.Start(context.Background()); err != nil {
			log.Printf("Config hot-reload disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	r := server.SetupRouter()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 Starting StreamGate on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
