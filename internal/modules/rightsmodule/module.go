package rightsmodule

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/thewans/streamgate/internal/database"
	"github.com/thewans/streamgate/internal/logger"
	"github.com/thewans/streamgate/internal/modules/modulemanager"
)

// Module wires the window store and availability resolver into the module
// system.
type Module struct {
	id   string
	name string
	core bool

	db       *gorm.DB
	store    *WindowStore
	resolver *Resolver
}

// Auto-register the module when imported
func init() {
	Register()
}

// Register registers this module with the module system
func Register() {
	modulemanager.Register(&Module{
		id:   "system.rights",
		name: "Rights Manager",
		core: true,
	})
}

// ID returns the module ID
func (m *Module) ID() string {
	return m.id
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return m.core
}

// Migrate sets up the module's database schema
func (m *Module) Migrate(db *gorm.DB) error {
	m.db = db
	return db.AutoMigrate(&database.Window{})
}

// Init initializes the module
func (m *Module) Init() error {
	log := logger.NewComponentLogger("rights")
	m.store = NewWindowStore(m.db, log)
	m.resolver = NewResolver(m.db, log)
	return nil
}

// RegisterRoutes registers the module's HTTP routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	handler := NewAPIHandler(m.store, m.resolver)
	registerRoutes(router, handler)
}

// Store exposes the window store to other modules
func (m *Module) Store() *WindowStore {
	return m.store
}

// Resolver exposes the availability resolver to other modules
func (m *Module) Resolver() *Resolver {
	return m.resolver
}
