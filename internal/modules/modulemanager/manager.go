package modulemanager

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/thewans/streamgate/internal/logger"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string   // Unique identifier for the module
	Name() string // Display name for the module
	Core() bool   // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error
	Init() error
}

// RouteRegistrar is implemented by modules that expose HTTP routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// ModuleRegistry manages registered modules and their lifecycle
type ModuleRegistry struct {
	mu              sync.RWMutex
	modules         map[string]Module
	order           []string
	disabledModules map[string]bool
	initialized     bool
}

// Registry is the global module registry
var Registry = &ModuleRegistry{
	modules:         make(map[string]Module),
	disabledModules: make(map[string]bool),
}

// Register adds a module to the global registry
func Register(module Module) {
	Registry.Register(module)
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(module Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[module.ID()]; exists {
		logger.Warn("Module already registered: %s", module.ID())
		return
	}

	r.modules[module.ID()] = module
	r.order = append(r.order, module.ID())
}

// Initialize migrates and initializes all enabled modules in registration order
func Initialize(db *gorm.DB) error {
	return Registry.Initialize(db)
}

// Initialize migrates and initializes all enabled modules
func (r *ModuleRegistry) Initialize(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return fmt.Errorf("module registry already initialized")
	}

	for _, id := range r.order {
		module := r.modules[id]
		if r.disabledModules[id] {
			logger.Info("Skipping disabled module: %s", module.Name())
			continue
		}

		if err := module.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}

		if err := module.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}

		logger.Info("✅ Module loaded: %s", module.Name())
	}

	r.initialized = true
	return nil
}

// DisableModule marks a module as disabled (for development/testing only)
func DisableModule(id string) {
	Registry.DisableModule(id)
}

// DisableModule marks a module as disabled
func (r *ModuleRegistry) DisableModule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	module, exists := r.modules[id]
	if !exists {
		logger.Warn("Attempted to disable non-existent module: %s", id)
		return
	}

	if module.Core() {
		logger.Error("Cannot disable core module: %s", id)
		return
	}

	r.disabledModules[id] = true
}

// GetModule returns a module by ID
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, exists := r.modules[id]
	return module, exists
}

// ListModules returns all registered modules
func ListModules() []Module {
	return Registry.ListModules()
}

// ListModules returns all registered modules in registration order
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		modules = append(modules, r.modules[id])
	}
	return modules
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		module := r.modules[id]
		if r.disabledModules[id] {
			continue
		}
		if routeRegistrar, ok := module.(RouteRegistrar); ok {
			routeRegistrar.RegisterRoutes(router)
		}
	}
}
