package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/ai"
	"github.com/avelius/pokebattle-backend/internal/battle"
	"github.com/avelius/pokebattle-backend/internal/config"
	"github.com/avelius/pokebattle-backend/internal/engine"
	"github.com/avelius/pokebattle-backend/internal/httpapi"
	"github.com/avelius/pokebattle-backend/internal/observability"
	"github.com/avelius/pokebattle-backend/internal/room"
	"github.com/avelius/pokebattle-backend/internal/typechart"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var advisor ai.Advisor
	if cfg.Battle.AdvisorURL != "" {
		advisor = ai.NewHTTPAdvisor(cfg.Battle.AdvisorURL)
	}

	registry := battle.NewRegistry(battle.Config{
		NewEngine: func(ctx context.Context, spec engine.StartSpec) (engine.Engine, error) {
			return engine.NewProcess(ctx, cfg.Engine.Command, cfg.Engine.Args, spec, logger)
		},
		PreviewTimeout: cfg.Battle.PreviewTimeout.Std(),
		AIDeps: ai.Deps{
			Chart:     typechart.New(logger),
			Estimator: ai.HeuristicEstimator{},
			Advisor:   advisor,
			Budget:    cfg.Battle.AdvisorBudget.Std(),
			Log:       logger,
		},
	}, logger)

	rooms := room.NewManager(ctx, registry, room.ManagerConfig{
		UnclaimedTimeout: cfg.Room.UnclaimedTimeout.Std(),
		WaitingTTL:       cfg.Room.WaitingTTL.Std(),
		SweepInterval:    cfg.Room.SweepInterval.Std(),
	}, logger)
	defer rooms.Shutdown()
	defer registry.Shutdown()

	handler := httpapi.SetupRoutes(registry, rooms, logger)

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
