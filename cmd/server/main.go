package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"campaign-planner/backend/internal/ai"
	"campaign-planner/backend/internal/api"
)

type config struct {
	Port           string        `env:"PORT" envDefault:"2000"`
	DBPath         string        `env:"CAMPAIGN_DB_PATH"`
	PlannerBaseURL string        `env:"PLANNER_BASE_URL" envDefault:"http://localhost:8000"`
	PlannerAPIKey  string        `env:"PLANNER_API_KEY"`
	PlannerTimeout time.Duration `env:"PLANNER_TIMEOUT" envDefault:"60s"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logrus.Fatalf("parse environment: %v", err)
	}

	if cfg.DBPath == "" {
		baseDir, err := os.Getwd()
		if err != nil {
			logrus.Fatalf("determine working directory: %v", err)
		}
		dataDir := filepath.Join(baseDir, "data")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			logrus.Fatalf("create data directory: %v", err)
		}
		cfg.DBPath = filepath.Join(dataDir, "campaign-planner.db")
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}
	}

	server, err := api.NewServer(api.Config{
		DBPath:         cfg.DBPath,
		AllowedOrigins: cfg.AllowedOrigins,
		AIConfig: ai.Config{
			BaseURL: cfg.PlannerBaseURL,
			APIKey:  cfg.PlannerAPIKey,
			Timeout: cfg.PlannerTimeout,
		},
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	logrus.Infof("starting campaign-planner backend on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
