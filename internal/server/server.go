package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/thewans/streamgate/internal/config"
	"github.com/thewans/streamgate/internal/database"
	"github.com/thewans/streamgate/internal/modules/modulemanager"

	// Import all modules to trigger their registration
	_ "github.com/thewans/streamgate/internal/modules/playbackmodule"
	_ "github.com/thewans/streamgate/internal/modules/rightsmodule"
)

var moduleInitialized bool

var startedAt = time.Now()

// SetupRouter configures and returns the main router
func SetupRouter() *gin.Engine {
	cfg := config.Get()

	r := gin.Default()

	if cfg.Server.EnableCORS {
		r.Use(corsMiddleware())
	}
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			log.Printf("Failed to set trusted proxies: %v", err)
		}
	}

	if err := initializeModules(); err != nil {
		log.Fatalf("Failed to initialize modules: %v", err)
	}

	setupRoutes(r)
	modulemanager.RegisterRoutes(r)

	return r
}

// corsMiddleware allows cross-origin requests from player frontends
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Territory, X-Device-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// initializeModules sets up the module system and loads all modules
func initializeModules() error {
	if moduleInitialized {
		return nil
	}

	if err := modulemanager.Initialize(database.GetDB()); err != nil {
		return err
	}

	moduleInitialized = true
	logModuleStatus()
	return nil
}

// logModuleStatus logs the loaded modules
func logModuleStatus() {
	modules := modulemanager.ListModules()
	log.Printf("✅ Module system initialized with %d modules", len(modules))
	for _, module := range modules {
		log.Printf("  - %s (%s)", module.Name(), module.ID())
	}
}

// setupRoutes configures the non-module routes
func setupRoutes(r *gin.Engine) {
	r.GET("/health", handleHealth)
	api := r.Group("/api")
	{
		api.GET("/health", handleHealth)
	}
}

// handleHealth reports service liveness plus basic host load, so the
// balancer can drain a starved instance before admissions start timing out.
func handleHealth(c *gin.Context) {
	health := gin.H{
		"status":  "ok",
		"service": "streamgate",
		"time":    database.Now().Format(time.RFC3339),
		"uptime":  time.Since(startedAt).Round(time.Second).String(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		health["memory_percent"] = vm.UsedPercent
	}

	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			health["status"] = "degraded"
			health["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "ok"
	}

	c.JSON(http.StatusOK, health)
}
