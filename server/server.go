// server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"

	"github.com/wfunc/partyserver/config"
	"github.com/wfunc/partyserver/gateway"
	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/middleware"
	"github.com/wfunc/partyserver/monitor"
	"github.com/wfunc/partyserver/persistence"
	"github.com/wfunc/partyserver/rpc"
	"github.com/wfunc/partyserver/services"
	"github.com/wfunc/partyserver/timer"
	"github.com/wfunc/partyserver/workers"
)

const (
	rateLimitRequests = 120
	rateLimitWindow   = time.Minute
	gaugeSampleEvery  = 30 * time.Second
)

// Server wires the managers, gateway, workers and listeners together and
// owns their lifecycle.
type Server struct {
	cfg   *config.Config
	store persistence.Store
	stats *persistence.StatsStore

	monitor *monitor.Monitor
	gateway *gateway.Gateway

	rooms         *services.RoomService
	games         *services.GameService
	notifications *services.NotificationService
	media         *services.MediaService

	redisClient *redis.Client
	asynqClient *asynq.Client

	httpServer *http.Server
	rpcServer  *rpc.Server
	worker     *workers.Server
	scheduler  gocron.Scheduler
	timers     *timer.Manager
}

// New builds the full object graph. The gateway is constructed before the
// managers because it is their event emitter; Bind closes the loop once the
// managers exist.
func New(cfg *config.Config, store persistence.Store) (*Server, error) {
	pg := cfg.Database.Postgres
	stats, err := persistence.NewStatsStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)

	mon := monitor.NewMonitor("partyserver")
	gw := gateway.New(mon)

	locks := services.NewEntityLocks()
	notifications := services.NewNotificationService(store, asynqClient, gw)
	rooms := services.NewRoomService(store, gw, notifications, locks)
	games := services.NewGameService(store, gw, notifications, locks)
	gw.Bind(rooms, games)

	media, err := services.NewMediaService(cfg.Media, store)
	if err != nil {
		return nil, err
	}

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return nil, err
	}
	if err := rpc.Register(rpc.NewStatsService(stats)); err != nil {
		return nil, err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:           cfg,
		store:         store,
		stats:         stats,
		monitor:       mon,
		gateway:       gw,
		rooms:         rooms,
		games:         games,
		notifications: notifications,
		media:         media,
		redisClient:   redisClient,
		asynqClient:   asynqClient,
		rpcServer:     rpcServer,
		worker:        workers.NewServer(redisOpt),
		scheduler:     scheduler,
		timers:        timer.NewManager(),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddress,
		Handler: s.buildRouter(),
	}
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealthz)
	router.GET("/ws", s.handleWS)

	api := router.Group("/api")
	api.Use(middleware.Auth(s.cfg.Auth.JWTSecret))
	api.Use(middleware.RateLimit(s.redisClient, rateLimitRequests, rateLimitWindow))
	{
		api.POST("/rooms", s.handleCreateRoom)
		api.GET("/rooms/:id", s.handleGetRoom)
		api.PATCH("/rooms/:id", s.handleUpdateRoom)
		api.POST("/rooms/:id/join", s.handleJoinRoom)
		api.POST("/rooms/:id/leave", s.handleLeaveRoom)
		api.POST("/rooms/:id/requests", s.handleCreateJoinRequest)
		api.POST("/requests/:id", s.handleResolveJoinRequest)

		api.POST("/rooms/:id/sessions", s.handleCreateSession)
		api.POST("/sessions/:id/join", s.handleJoinSession)
		api.POST("/sessions/:id/leave", s.handleLeaveSession)
		api.POST("/sessions/:id/end", s.handleEndSession)
		api.POST("/sessions/:id/score", s.handleAddScore)
		api.POST("/sessions/:id/invite", s.handleInvite)

		api.GET("/notifications", s.handleListNotifications)
		api.POST("/media", s.handleUploadMedia)
	}

	return router
}

// Run starts every listener and blocks until ctx is cancelled, then shuts
// down in reverse order.
func (s *Server) Run(ctx context.Context) error {
	s.monitor.StartServer(s.cfg.Server.MetricsAddress)
	go s.rpcServer.Start()
	go s.worker.Start()

	retention := s.cfg.Notifications.RetentionDays
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(4, 0, 0))),
		gocron.NewTask(func() { s.notifications.CleanupOld(retention) }),
	)
	if err != nil {
		return err
	}
	s.scheduler.Start()

	s.timers.Schedule(gaugeSampleEvery, gaugeSampleEvery, s.sampleGauges)

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("HTTP server listening on %s", s.cfg.Server.HTTPAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("shutdown signal received")
	case err := <-errCh:
		logger.Log.Errorf("HTTP server failed: %v", err)
		s.Shutdown()
		return err
	}

	s.Shutdown()
	return nil
}

// sampleGauges refreshes the room and session gauges from the database.
// The online-users gauge is maintained by the gateway on connect/disconnect.
func (s *Server) sampleGauges() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rooms, err := s.stats.ActiveRoomCount(ctx); err == nil {
		s.monitor.SetActiveRooms(rooms)
	}
	if sessions, err := s.stats.ActiveSessionCount(ctx); err == nil {
		s.monitor.SetActiveSessions(sessions)
	}
}

func (s *Server) Shutdown() {
	logger.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("HTTP shutdown error: %v", err)
	}

	s.timers.Stop()
	if err := s.scheduler.Shutdown(); err != nil {
		logger.Log.Warnf("scheduler shutdown error: %v", err)
	}
	s.worker.Shutdown()
	s.rpcServer.Stop()

	if err := s.asynqClient.Close(); err != nil {
		logger.Log.Warnf("asynq client close error: %v", err)
	}
	if err := s.redisClient.Close(); err != nil {
		logger.Log.Warnf("redis client close error: %v", err)
	}
	if err := s.stats.Close(); err != nil {
		logger.Log.Warnf("stats store close error: %v", err)
	}
	if err := s.store.Close(); err != nil {
		logger.Log.Warnf("store close error: %v", err)
	}
	logger.Log.Info("shutdown complete")
}
