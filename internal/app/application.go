package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"supportchat/internal/api"
	"supportchat/internal/config"
	"supportchat/internal/database"
	"supportchat/internal/hub"
	"supportchat/internal/matching"
	"supportchat/internal/ratelimit"
	"supportchat/internal/registry"
	"supportchat/internal/room"
	"supportchat/internal/router"
	"supportchat/internal/session"
	"supportchat/internal/websocket"
	"supportchat/migrations"
	pkgdatabase "supportchat/pkg/database"
	"supportchat/pkg/interfaces"
	"supportchat/pkg/types"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	ledger      *database.Manager // nil when the ledger is disabled
	redisClient *redis.Client     // nil with in-memory rate limiting
	memLimiter  *ratelimit.MemoryLimiter
	registry    *registry.Registry
	engine      *matching.Engine
	messageHub  *hub.Hub
	apiServer   *api.Server
	httpServer  *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Ledger → Registry → Rooms → Sessions → Engine → Limiter → Router → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: cfg}

	// STEP 1: Pairing ledger (optional foundation layer)
	// TECHNICAL DISCOVERY: Interface values stay nil when disabled; a typed nil
	// pointer would make the engine and API believe a ledger exists
	var recorder interfaces.SessionRecorder
	var ledger interfaces.SessionLedger
	if cfg.Database.Enabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path
		dbConfig.MaxConnections = cfg.Database.MaxConnections
		dbConfig.WriteTimeout = cfg.Database.Timeout

		manager, err := database.NewManager(dbConfig, migrations.FS)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize session ledger: %w", err)
		}
		app.ledger = manager
		recorder = manager
		ledger = manager

		// FUNCTIONAL DISCOVERY: Rows left open by a crash can never be closed by
		// their (long gone) connections
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
		closed, err := manager.EndOpenSessions(ctx, types.ReasonShutdown, time.Now())
		cancel()
		if err != nil {
			_ = manager.Close()
			return nil, fmt.Errorf("failed to close stale ledger rows: %w", err)
		}
		if closed > 0 {
			log.Printf("Closed %d stale ledger rows from previous run", closed)
		}
	} else {
		log.Println("Session ledger disabled")
	}

	// STEP 2: Matching state
	app.registry = registry.NewRegistry()
	rooms := room.NewState(cfg.Matching.MaxQueueSize)
	sessions := session.NewTable()
	app.engine = matching.NewEngine(app.registry, rooms, sessions, recorder, matching.Config{
		MaxIdentityLength: cfg.Matching.MaxIdentityLength,
	})

	// STEP 3: Rate limiter for the relay layer
	limiter, err := app.buildLimiter()
	if err != nil {
		app.closeLedger()
		return nil, err
	}

	// STEP 4: Relay router and the hub that serializes every event
	messageRouter := router.NewRouter(app.registry, sessions, limiter)
	app.messageHub = hub.NewHub(app.registry, app.engine, messageRouter)

	// STEP 5: WebSocket handler and API server share one gin engine
	wsHandler := websocket.NewHandler(app.registry, app.messageHub, websocket.Config{
		PingInterval:  cfg.WebSocket.PingInterval,
		ReadTimeout:   cfg.WebSocket.ReadTimeout,
		WriteTimeout:  cfg.WebSocket.WriteTimeout,
		BufferSize:    cfg.WebSocket.BufferSize,
		MaxFrameBytes: cfg.WebSocket.MaxFrameBytes,
	})
	app.apiServer = api.NewServer(app.messageHub, ledger, wsHandler.Serve)

	// STEP 6: HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      app.apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

// buildLimiter picks Redis when configured, otherwise the in-memory window
func (app *Application) buildLimiter() (ratelimit.Limiter, error) {
	rl := app.config.RateLimit
	if rl.RedisURL == "" {
		app.memLimiter = ratelimit.NewMemoryLimiter(rl.MessagesPerMinute, time.Minute)
		log.Printf("Rate limiting in memory limit=%d/min", rl.MessagesPerMinute)
		return app.memLimiter, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := ratelimit.NewRedisClient(ctx, rl.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rate limit store: %w", err)
	}
	app.redisClient = client
	log.Printf("Rate limiting in Redis limit=%d/min prefix=%s", rl.MessagesPerMinute, rl.KeyPrefix)
	return ratelimit.NewRedisLimiter(client, rl.KeyPrefix, rl.MessagesPerMinute, time.Minute), nil
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
// Hub starts first to handle events, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		return errors.New("application already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())

	// STEP 1: Start event hub (background event processing)
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	if app.memLimiter != nil {
		go app.memLimiter.Run(runCtx)
	}

	// STEP 2: Bind before serving so bind errors surface here
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		cancel()
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		_ = listener.Close()
		_ = app.messageHub.Stop()
		return err
	}

	app.listener = listener
	app.cancel = cancel

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Support chat server listening on %s", listener.Addr())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub (closes chats and sockets) → Limiter → Ledger
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Printf("Shutting down support chat server")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: End every chat and close every socket
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Event hub shutdown error: %v", err)
	}

	// STEP 3: Background workers and the rate limit store
	if app.cancel != nil {
		app.cancel()
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}

	// STEP 4: Flush and close the ledger last so shutdown end records are kept
	app.closeLedger()

	log.Printf("Support chat server shutdown complete")
	return nil
}

func (app *Application) closeLedger() {
	if app.ledger == nil {
		return
	}
	if err := app.ledger.Close(); err != nil {
		log.Printf("Ledger shutdown error: %v", err)
	}
}

// Addr returns the bound address once started, otherwise the configured one
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP surface (API and /ws)
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Ledger returns the session ledger, or nil when disabled
func (app *Application) Ledger() interfaces.SessionLedger {
	if app.ledger == nil {
		return nil
	}
	return app.ledger
}
