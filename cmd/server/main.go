package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/sketchduel/backend/internal/classifier"
	"github.com/sketchduel/backend/internal/config"
	"github.com/sketchduel/backend/internal/httpapi"
	"github.com/sketchduel/backend/internal/hub"
	"github.com/sketchduel/backend/internal/session"
	"github.com/sketchduel/backend/internal/storage"
	"github.com/sketchduel/backend/internal/ws"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := buildLogger(cfg.Production)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	if err := store.SeedLabels(cfg.LabelDictPath); err != nil {
		logger.Fatal("seed labels", zap.Error(err))
	}

	ctx := context.Background()
	h := hub.NewHub(ctx, hub.Config{
		RoundsPerGame: cfg.RoundsPerGame,
		Difficulty:    cfg.Difficulty,
		Logger:        logger,
		Labels:        store,
		SessionDeps: session.Deps{
			Logger:     logger,
			Translator: store,
			Scores:     store,
			Difficulty: cfg.Difficulty,
		},
	})

	reaper := hub.NewReaper(h, cfg.SessionTTL, cfg.ReapInterval)
	go reaper.Run(ctx)

	handler := httpapi.SetupRoutes(ws.Deps{
		Hub:        h,
		Classifier: classifier.NewHTTPClassifier(cfg.ClassifierURL),
		Constraints: classifier.Constraints{
			MaxBytes: cfg.MaxImageBytes,
			MinDim:   cfg.MinImageDim,
		},
		Logger: logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
