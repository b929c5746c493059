package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/remibonds525-star/loyalty-engine/auth"
	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/middleware"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
)

// App represents the rewards service application
type App struct {
	engine            *gin.Engine
	config            *config.Config
	logger            zerolog.Logger
	httpServer        *http.Server
	onShutdown        []func()
	play              *PlayService
	playHandler       *PlayHandler
	walletHandler     *WalletHandler
	jackpotHandler    *JackpotHandler
	jackpotService    *jackpot.Service
	jackpotFeedCancel context.CancelFunc
}

// Options holds server configuration options
type Options struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Play    *PlayService
	Jackpot *jackpot.Service
}

// Router is an alias for gin.Engine for convenience
type Router = gin.Engine

// New creates a new rewards service application
func New(opts Options) *App {
	// Set Gin mode
	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	app := &App{
		engine:         engine,
		config:         opts.Config,
		logger:         opts.Logger,
		play:           opts.Play,
		jackpotService: opts.Jackpot,
	}

	app.playHandler = NewPlayHandler(opts.Play, opts.Logger)
	app.walletHandler = NewWalletHandler(opts.Play, opts.Logger)
	app.jackpotHandler = NewJackpotHandler(opts.Jackpot, opts.Logger)

	return app
}

// AttachJackpotUpdateFeed attaches a source of jackpot pool updates
// (e.g. the Kafka consumer channel). It copies updates into the shared
// jackpot service buffer. Pass nil to detach.
func (a *App) AttachJackpotUpdateFeed(feed <-chan jackpot.Update) {
	// stop previous feed if any
	if a.jackpotFeedCancel != nil {
		a.jackpotFeedCancel()
		a.jackpotFeedCancel = nil
	}
	if feed == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.jackpotFeedCancel = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-feed:
				if !ok {
					return
				}
				a.jackpotService.HandlePoolUpdate(upd)
			}
		}
	}()
}

// UseCommonMiddlewares adds common middlewares to the application
func (a *App) UseCommonMiddlewares() {
	// Recovery middleware (must be first)
	a.engine.Use(middleware.Recovery(a.logger))

	// Trace ID middleware
	a.engine.Use(middleware.TraceID())

	// Logging middleware
	a.engine.Use(middleware.Logging(a.logger))

	// CORS middleware if enabled
	if a.config.Server.EnableCORS {
		a.engine.Use(middleware.CORS())
	}
}

// UseMiddleware adds a custom middleware
func (a *App) UseMiddleware(m gin.HandlerFunc) {
	a.engine.Use(m)
}

// RegisterHealthCheck adds health check endpoints
func (a *App) RegisterHealthCheck() {
	a.engine.GET("/health", a.healthCheck)
	a.engine.GET("/api/health", a.healthCheck)
}

func (a *App) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   a.config.Environment,
	})
}

// RegisterAPIRoutes registers the rewards API routes
//
// Flow: HTTP Request -> route group -> handler -> PlayService
//
// Routes registered:
//   - POST /api/games/saw/spin                        -> PlayHandler.SpinSaw
//   - POST /api/games/mines/boards                    -> PlayHandler.CreateMinesBoard
//   - GET  /api/games/mines/boards/:board_id          -> PlayHandler.GetMinesBoard
//   - POST /api/games/mines/boards/:board_id/reveal   -> PlayHandler.RevealMinesCell
//   - POST /api/games/mines/boards/:board_id/cashout  -> PlayHandler.CashOutMines
//   - POST /api/games/daily/spin                      -> PlayHandler.SpinDaily
//   - GET  /api/games/quota                           -> PlayHandler.GetQuota
//   - GET  /api/wallet/balance                        -> WalletHandler.GetBalance
//   - GET  /api/wallet/history                        -> WalletHandler.GetHistory
//   - POST /api/wallet/purchase                       -> WalletHandler.Purchase
//   - GET  /api/jackpot                               -> JackpotHandler.GetPool
//   - GET  /api/jackpot/updates                       -> JackpotHandler.StreamUpdates (SSE)
//   - GET  /api/jackpot/updates/ws                    -> JackpotHandler.StreamUpdatesWebSocket
func (a *App) RegisterAPIRoutes() {
	jwtMiddleware := auth.JWTMiddleware(a.config.JWT.Secret, a.logger)

	games := a.engine.Group("/api/games")
	games.Use(jwtMiddleware)
	{
		games.POST("/saw/spin", a.playHandler.SpinSaw)
		games.POST("/daily/spin", a.playHandler.SpinDaily)
		games.GET("/quota", a.playHandler.GetQuota)

		mines := games.Group("/mines")
		{
			mines.POST("/boards", a.playHandler.CreateMinesBoard)
			mines.GET("/boards/:board_id", a.playHandler.GetMinesBoard)
			mines.POST("/boards/:board_id/reveal", a.playHandler.RevealMinesCell)
			mines.POST("/boards/:board_id/cashout", a.playHandler.CashOutMines)
		}
	}

	wallet := a.engine.Group("/api/wallet")
	wallet.Use(jwtMiddleware)
	{
		wallet.GET("/balance", a.walletHandler.GetBalance)
		wallet.GET("/history", a.walletHandler.GetHistory)
		wallet.POST("/purchase", a.walletHandler.Purchase)
	}

	pool := a.engine.Group("/api/jackpot")
	pool.Use(jwtMiddleware)
	{
		pool.GET("", a.jackpotHandler.GetPool)
		pool.GET("/updates", a.jackpotHandler.StreamUpdates)      // SSE endpoint
		pool.GET("/updates/ws", a.jackpotHandler.StreamUpdatesWebSocket) // WebSocket endpoint
	}

	a.logger.Info().Msg("API routes registered: /api/games, /api/wallet, /api/jackpot")
}

// Router returns the Gin engine for custom route registration
func (a *App) Router() *gin.Engine {
	return a.engine
}

// Group creates a route group
func (a *App) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return a.engine.Group(path, handlers...)
}

// AuthGroup creates a route group with JWT authentication
func (a *App) AuthGroup(path string) *gin.RouterGroup {
	return a.engine.Group(path, auth.JWTMiddleware(a.config.JWT.Secret, a.logger))
}

// RegisterRoutes registers custom routes using a callback
func (a *App) RegisterRoutes(fn func(*gin.Engine)) {
	fn(a.engine)
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run starts the HTTP server
func (a *App) Run() error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	return a.waitForShutdown()
}

// RunWithContext starts the HTTP server with context
func (a *App) RunWithContext(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errChan:
		return err
	}
}

func (a *App) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Detach the pool-update feed before stopping the service
	if a.jackpotFeedCancel != nil {
		a.jackpotFeedCancel()
		a.jackpotFeedCancel = nil
	}

	// Call registered shutdown handlers
	for _, fn := range a.onShutdown {
		fn()
	}

	if a.jackpotService != nil {
		a.jackpotService.Stop()
	}

	// Shutdown HTTP server
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error during server shutdown")
		return err
	}

	a.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// PlayService returns the play orchestrator
func (a *App) PlayService() *PlayService {
	return a.play
}

// JackpotService returns the jackpot pool service
func (a *App) JackpotService() *jackpot.Service {
	return a.jackpotService
}
