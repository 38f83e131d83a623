package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/arclight-robotics/planview/internal/backend"
	"github.com/arclight-robotics/planview/internal/config"
	"github.com/arclight-robotics/planview/internal/console"
	"github.com/arclight-robotics/planview/internal/db"
	"github.com/arclight-robotics/planview/internal/version"
)

var (
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Path to the run history database (overrides config)")
	backendURL = flag.String("backend", "", "Planning backend base URL (overrides config)")
	configPath = flag.String("config", "", "Path to console config JSON")
)

func main() {
	flag.Parse()

	log.Printf("planview %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg := config.EmptyConsoleConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConsoleConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}
	path := cfg.GetDBPath()
	if *dbPath != "" {
		path = *dbPath
	}
	backendBase := cfg.GetBackendURL()
	if *backendURL != "" {
		backendBase = *backendURL
	}

	database, err := db.Open(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var backendClient *backend.Client
	if backendBase != "" {
		backendClient = backend.NewClient(backendBase, nil)
		log.Printf("Using planning backend at %s", backendBase)
	} else {
		log.Printf("No planning backend configured; synthetic replay only")
	}

	server := console.NewWebServer(console.WebServerConfig{
		Address: addr,
		Runs:    db.NewRunStore(database),
		Backend: backendClient,
		Config:  cfg,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	wg.Wait()
}
