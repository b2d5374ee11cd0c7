package app

import (
	"context"
	"fmt"
	"log"

	"studyhall/internal/auth"
	"studyhall/internal/config"
	"studyhall/internal/history"
	"studyhall/internal/notify"
	"studyhall/internal/realtime"
	pkgdatabase "studyhall/pkg/database"
)

// Application coordinates all client components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config   *config.Config
	tokens   *auth.Manager
	archive  *history.Manager
	registry *realtime.Registry

	// Session-scoped components, created at login
	router     *notify.Router
	supervisor *realtime.Supervisor
	routerSub  string
}

// NewApplication creates an application instance with session-independent
// components initialized
// Component initialization follows strict dependency order:
// Config → Archive → Auth → Registry; Router and Supervisor are per session
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	archiveConfig := pkgdatabase.DefaultConfig()
	archiveConfig.DatabasePath = cfg.History.Path
	archiveConfig.ConnMaxLifetime = cfg.History.Timeout
	archiveConfig.ConnMaxIdleTime = cfg.History.Timeout / 3

	archive, err := history.NewManager(archiveConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notification archive: %w", err)
	}

	return &Application{
		config:   cfg,
		tokens:   auth.NewManager(cfg.Auth),
		archive:  archive,
		registry: realtime.NewRegistry(),
	}, nil
}

// Login authenticates and brings the realtime channel up
// FUNCTIONAL DISCOVERY: The notification router is session-scoped - it is
// seeded from the archive for the authenticated user and attached to the
// registry before the supervisor opens the connection, so no early event
// can be dropped
func (a *Application) Login(ctx context.Context, identifier, secret string) error {
	session, err := a.tokens.Login(ctx, identifier, secret)
	if err != nil {
		return err
	}

	router := notify.NewRouter(a.config.Notify.MaxHistory).WithArchive(a.archive, session.User.ID)

	recent, err := a.archive.LoadRecentNotifications(ctx, session.User.ID, a.config.Notify.MaxHistory)
	if err != nil {
		log.Printf("Could not seed notification history: %v", err)
	} else {
		router.Seed(recent)
	}

	subID, err := router.Attach(a.registry)
	if err != nil {
		return fmt.Errorf("failed to attach notification router: %w", err)
	}

	transport := realtime.NewWebsocketTransport(a.config.Realtime.HandshakeTimeout)
	supervisor := realtime.NewSupervisor(a.config.Realtime, a.tokens, transport, a.registry)

	if err := supervisor.Start(ctx); err != nil {
		a.registry.Unsubscribe(subID)
		return fmt.Errorf("failed to start realtime supervisor: %w", err)
	}

	a.router = router
	a.supervisor = supervisor
	a.routerSub = subID

	return nil
}

// Logout tears the session and its realtime channel down
func (a *Application) Logout() {
	if a.supervisor != nil {
		if err := a.supervisor.Stop(); err != nil && err != realtime.ErrSupervisorNotRunning {
			log.Printf("Supervisor stop: %v", err)
		}
		a.supervisor = nil
	}

	if a.routerSub != "" {
		a.registry.Unsubscribe(a.routerSub)
		a.routerSub = ""
	}

	a.tokens.Logout()
	a.router = nil
}

// Close releases session-independent resources
func (a *Application) Close() error {
	a.Logout()
	return a.archive.Close()
}

// Notifications exposes the session's notification router; nil before login
func (a *Application) Notifications() *notify.Router {
	return a.router
}

// Registry exposes the subscription registry so additional UI listeners can
// register independently of the router
func (a *Application) Registry() *realtime.Registry {
	return a.registry
}

// Tokens exposes the token lifecycle manager
func (a *Application) Tokens() *auth.Manager {
	return a.tokens
}

// Supervisor exposes the running connection supervisor; nil before login
func (a *Application) Supervisor() *realtime.Supervisor {
	return a.supervisor
}
