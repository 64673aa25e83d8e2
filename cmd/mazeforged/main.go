// mazeforged is the MazeForge web front-end: an HTTP and WebSocket
// daemon that runs maze batches, streams their progress, and serves
// the packaged artifacts for download.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mazeforge/mazeforge/internal/catalog"
	"github.com/mazeforge/mazeforge/internal/config"
	"github.com/mazeforge/mazeforge/internal/logger"
	"github.com/mazeforge/mazeforge/internal/mazegen"
	"github.com/mazeforge/mazeforge/internal/server"
	"github.com/mazeforge/mazeforge/internal/store"
)

func main() {
	// Parse command-line flags
	port := flag.Int("port", 8080, "HTTP server port")
	serverConfigFile := flag.String("config", "data/server.yaml", "Path to server config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	catalogFile := flag.String("catalog", "", "Path to a catalog YAML file (empty for built-in defaults)")
	dbDriver := flag.String("db-driver", "sqlite", "Database driver: sqlite or postgres")
	dbFile := flag.String("db", "data/mazeforge.db", "Path to SQLite database file (empty disables persistence)")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "mazeforge", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "mazeforge", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash for a password and exit")
	flag.Parse()

	// Handle -hash-password flag (prints the hash and exits)
	if *hashPassword != "" {
		handleHashPassword(*hashPassword)
		return
	}

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	logger.Initialize(logConfig)

	logger.Info("Starting MazeForge daemon")

	// Load the generation catalog
	cat := catalog.Default()
	if *catalogFile != "" {
		loaded, err := catalog.LoadFromYAML(*catalogFile)
		if err != nil {
			logger.Warning("Failed to load catalog, using built-in defaults", "path", *catalogFile, "error", err)
		} else {
			cat = loaded
			logger.Info("Catalog loaded", "path", *catalogFile)
		}
	}
	logger.Info("Generation catalog ready",
		"shapes", len(cat.Shapes()),
		"algorithms", len(cat.Algorithms()),
		"presets", len(cat.Presets()))

	// Create the server
	addr := fmt.Sprintf(":%d", *port)
	srv := server.NewServer(addr, cat, mazegen.New())

	// Open the settings and run-history store
	if storeCfg, enabled := buildStoreConfig(*dbDriver, *dbFile, *pgHost, *pgPort, *pgUser, *pgPassword, *pgDatabase, *pgSSLMode); enabled {
		st, err := store.Open(storeCfg)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer st.Close()
		srv.SetStore(st)
		logger.Info("Store initialized", "driver", storeCfg.Driver)
	} else {
		logger.Warning("Running without persistence - settings and run history won't be saved")
	}

	// Load and set server config (auth, origins, limits)
	serverCfg, err := config.LoadConfig(*serverConfigFile)
	if err != nil {
		logger.Warning("Failed to load server config, using defaults", "path", *serverConfigFile, "error", err)
		serverCfg = config.DefaultConfig()
	}
	srv.SetServerConfig(serverCfg)

	if len(serverCfg.WebSocket.AllowedOrigins) == 0 {
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	} else if len(serverCfg.WebSocket.AllowedOrigins) == 1 && serverCfg.WebSocket.AllowedOrigins[0] == "*" {
		logger.Warning("WebSocket CORS allows all origins (not recommended for production)")
	} else {
		logger.Info("WebSocket CORS policy", "allowed_origins", serverCfg.WebSocket.AllowedOrigins)
	}

	if serverCfg.Auth.Enabled() {
		logger.Info("API basic auth enabled", "username", serverCfg.Auth.Username)
	} else {
		logger.Warning("API authentication disabled - anyone who can reach the daemon can start runs")
	}

	if serverCfg.Archive.Disabled {
		logger.Info("Archive packaging disabled - artifacts served as individual files")
	}

	// Start HTTP server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("MazeForge daemon running", "port", *port)
	logger.Info("Press Ctrl+C to shutdown")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server")
	srv.Shutdown()
}

// handleHashPassword prints the bcrypt hash for the auth config and exits
func handleHashPassword(password string) {
	hash, err := server.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
	fmt.Println()
	fmt.Println("Add this to the auth section of your server config:")
	fmt.Printf("  auth:\n    password_hash: %q\n", hash)
}

// buildStoreConfig assembles the store configuration from flags. The
// second return is false when persistence is disabled.
func buildStoreConfig(driver, dbFile, pgHost string, pgPort int, pgUser, pgPassword, pgDatabase, pgSSLMode string) (store.Config, bool) {
	if driver == "postgres" {
		pg := store.DefaultPostgresConfig()
		pg.Host = pgHost
		pg.Port = pgPort
		pg.User = pgUser
		pg.Password = pgPassword
		pg.Database = pgDatabase
		pg.SSLMode = pgSSLMode
		return store.Config{Driver: "postgres", Postgres: pg}, true
	}

	if dbFile == "" {
		return store.Config{}, false
	}
	return store.DefaultConfig(dbFile), true
}
