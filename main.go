package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/drawserver/broadcast"
	"github.com/wfunc/drawserver/config"
	"github.com/wfunc/drawserver/dispatch"
	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/monitor"
	"github.com/wfunc/drawserver/persistence"
	"github.com/wfunc/drawserver/room"
	"github.com/wfunc/drawserver/rpc"
	"github.com/wfunc/drawserver/server"
	"github.com/wfunc/drawserver/services"
	"github.com/wfunc/drawserver/session"
	"github.com/wfunc/drawserver/state"
	"github.com/wfunc/drawserver/timer"
	"github.com/wfunc/drawserver/words"
)

const metricsNamespace = "drawserver"

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Log.Warnf("Unknown log level %q, keeping info: %v", cfg.Log.Level, err)
	}

	vocabulary := loadVocabulary(cfg)
	picker, err := words.NewVocabulary(vocabulary, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		logger.Log.Fatalf("Failed to build vocabulary: %v", err)
	}
	logger.Log.Infof("Vocabulary ready with %d words", picker.Len())

	gate := room.NewArgon2idGate(cfg.Password.Memory, cfg.Password.Iterations, cfg.Password.Parallelism, cfg.Password.SaltLength, cfg.Password.KeyLength)
	rooms := room.NewRoomManager(gate, room.Defaults{
		MaxPlayers:      cfg.Game.MaxPlayers,
		TotalRounds:     cfg.Game.TotalRounds,
		SecondsPerRound: cfg.Game.RoundSeconds,
		MaxIDLength:     cfg.Limits.MaxRoomIDLength,
		MaxNameLength:   cfg.Limits.MaxRoomNameLength,
	})

	timers := timer.NewTimerManager()
	defer timers.Stop()

	sessions := session.NewManager()
	mon := monitor.NewMonitor(metricsNamespace)
	mon.TrackConnections(metricsNamespace, sessions.Len)

	dispatcher := dispatch.New(dispatch.Options{
		Rooms:     rooms,
		Words:     picker,
		Scheduler: timers,
		Settings: state.Settings{
			StartDelay:      cfg.Game.StartDelay,
			ResultsDelay:    cfg.Game.ResultsDelay,
			DrawerLeftDelay: cfg.Game.DrawerLeftDelay,
			ResetDelay:      cfg.Game.ResetDelay,
		},
		Sink:                 broadcast.NewFanout(sessions),
		Metrics:              mon,
		MaxChatLength:        cfg.Limits.MaxChatLength,
		MaxUserIDLength:      cfg.Limits.MaxUserIDLength,
		MaxDisplayNameLength: cfg.Limits.MaxDisplayNameLength,
		MaxAvatarRefLength:   cfg.Limits.MaxAvatarRefLength,
	})

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}

	gameServer := server.NewGameServer(server.Options{
		Config: cfg.Server,
		Limits: session.Limits{
			ChatPerSecond:   cfg.Limits.ChatPerSecond,
			ChatBurst:       cfg.Limits.ChatBurst,
			StrokePerSecond: cfg.Limits.StrokePerSecond,
			StrokeBurst:     cfg.Limits.StrokeBurst,
		},
		Sessions: sessions,
		Inbox:    dispatcher,
		Metrics:  mon.Handler(),
	})

	// The dispatcher outlives the HTTP server so disconnects from shutdown
	// are still processed.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()

	go func() {
		if err := rpcServer.Start(); err != nil {
			logger.Log.Errorf("RPC server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := gameServer.Start(); err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")
	rpcServer.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Game server shutdown: %v", err)
	}
	rpcServer.Stop()

	stopDispatch()
	<-dispatchDone
}

// loadVocabulary returns the builtin list or, when configured, the words
// stored in PostgreSQL.
func loadVocabulary(cfg *config.Config) []string {
	if cfg.Words.Source != "postgres" {
		return words.Builtin
	}

	pg := cfg.Database.Postgres
	store, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	logger.Log.Info("Database connection successful.")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	list, err := services.NewVocabularyService(store).Load(ctx, words.Builtin)
	if err != nil {
		logger.Log.Fatalf("Failed to load vocabulary: %v", err)
	}
	return list
}
