package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/boardcast/boardcast/internal/auth"
	"github.com/boardcast/boardcast/internal/authz"
	"github.com/boardcast/boardcast/internal/board"
	"github.com/boardcast/boardcast/internal/fanout"
	"github.com/boardcast/boardcast/internal/obs"
	"github.com/boardcast/boardcast/internal/room"
	"github.com/boardcast/boardcast/internal/router"
	"github.com/boardcast/boardcast/internal/server/middleware"
	"github.com/boardcast/boardcast/pkg/config"
	"github.com/boardcast/boardcast/pkg/state"
	"github.com/boardcast/boardcast/pkg/state/statemanager"
	"github.com/boardcast/boardcast/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	rooms        *room.Manager
	eventRouter  *router.EventRouter
	fanout       *fanout.Adapter
	cards        board.Mover
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, verifier *auth.Verifier, checker authz.Checker, cards board.Mover) *App {
	stateManager := statemanager.NewInMemoryManager(logger)

	adapter := fanout.New(logger, fanout.Options{URL: cfg.Redis.URL})
	rooms := room.NewManager(logger, stateManager, checker, adapter)
	// Peer-originated events land on local members exactly as if the
	// publishing instance's room manager had called BroadcastLocal here.
	adapter.SetHandler(rooms.BroadcastLocal)

	eventRouter := router.NewEventRouter(logger, stateManager, rooms, verifier, checker, cards)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		rooms:        rooms,
		eventRouter:  eventRouter,
		fanout:       adapter,
		cards:        cards,
		config:       cfg,
		ctx:          rootCtx,
	}

	connCounter := middleware.UserConnectionCounter(stateManager.GetUserConnectionCount)
	connCycler := func(userID string) {
		oldest, found := stateManager.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, verifier),
			middleware.NewConnectionLimiter(logger, connCounter, connCycler, cfg.Server.ConnectionLimit),
		),
	)
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", app.healthzHandler)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

// Fanout exposes the adapter, mainly so callers can observe its state.
func (a *App) Fanout() *fanout.Adapter { return a.fanout }

func (a *App) Run() error {
	a.fanout.Start(a.ctx)

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.logger,
	)

	stateConn, err := a.stateManager.RegisterConnection(conn, reqMeta.IP)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}
	// Bind the verified handshake identity before any frame is processed.
	if _, err := a.stateManager.AssociateIdentity(stateConn.ID, reqMeta.Identity, reqMeta.Token); err != nil {
		connLogger.Error("Failed to bind identity to connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		obs.ConnectionClosed()
		if dErr := a.stateManager.DeregisterConnection(id); dErr != nil {
			connLogger.Error("Failed to deregister connection from state", slog.Any("error", dErr))
		}
	})

	obs.ConnectionOpened()
	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

func (a *App) healthzHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status": "ok",
		"fanout": a.fanout.State().String(),
	}

	// A Degraded fan-out is survivable; an unreachable database is not.
	if pinger, ok := a.cards.(interface{ Ping(ctx context.Context) error }); ok {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(pingCtx); err != nil {
			a.logger.Error("Health check: database unreachable", slog.Any("error", err))
			body["status"] = "unhealthy"
			body["database"] = "unreachable"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(body)
			return
		}
		body["database"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.fanout.Close(); err != nil {
		a.logger.Error("Failed to close fan-out adapter", slog.Any("error", err))
	}

	// Close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.GetAllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// Wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
