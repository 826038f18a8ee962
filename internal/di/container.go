package di

import (
	"github.com/prohmpiriya/venue-approval/internal/handler"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/internal/worker"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"github.com/prohmpiriya/venue-approval/pkg/retry"
)

// Container holds all dependencies for the venue approval service
type Container struct {
	// Ledger
	Ledger repository.LedgerRepository

	// Publishers
	Broker *service.Broker

	// Services
	ApprovalService service.ApprovalService
	QueryService    service.QueryService
	AuditService    service.AuditService
	AdminService    service.AdminService

	// Handlers
	HealthHandler       *handler.HealthHandler
	EventHandler        *handler.EventHandler
	CatalogHandler      *handler.CatalogHandler
	AuditHandler        *handler.AuditHandler
	NotificationHandler *handler.NotificationHandler

	// Workers
	NotificationRelay *worker.NotificationRelay
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Ledger  repository.LedgerRepository
	Version string

	// Checks are probed by /ready. Nil entries are skipped.
	Checks map[string]handler.Pinger

	// Sinks receive every committed notification through the relay
	Sinks       []worker.Sink
	DLQ         retry.DLQPublisher
	RelayConfig *worker.NotificationRelayConfig

	StreamConfig *handler.NotificationHandlerConfig
	Logger       *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		Ledger: cfg.Ledger,
		Broker: service.NewBroker(),
	}

	// Initialize services. Every mutation is published to the in-process
	// broker; the relay and the SSE stream subscribe from there.
	c.ApprovalService = service.NewApprovalService(c.Ledger, service.NewAllocator(), c.Broker, nil)
	c.QueryService = service.NewQueryService(c.Ledger)
	c.AuditService = service.NewAuditService(c.Ledger)
	c.AdminService = service.NewAdminService(c.Ledger, c.Broker, nil)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(cfg.Version, cfg.Checks)
	c.EventHandler = handler.NewEventHandler(c.ApprovalService, c.QueryService)
	c.CatalogHandler = handler.NewCatalogHandler(c.QueryService, c.AdminService)
	c.AuditHandler = handler.NewAuditHandler(c.AuditService)
	c.NotificationHandler = handler.NewNotificationHandler(c.Broker, cfg.StreamConfig)

	// Initialize workers
	c.NotificationRelay = worker.NewNotificationRelay(cfg.RelayConfig, c.Broker, cfg.Sinks, cfg.DLQ, cfg.Logger)

	return c
}

// Handlers returns the API handlers for route registration
func (c *Container) Handlers() *handler.Handlers {
	return &handler.Handlers{
		Event:        c.EventHandler,
		Catalog:      c.CatalogHandler,
		Audit:        c.AuditHandler,
		Notification: c.NotificationHandler,
	}
}

// Close closes the broker, ending open streams and the relay
func (c *Container) Close() error {
	return c.Broker.Close()
}
