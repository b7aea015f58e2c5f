package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "~/.lobbyd/config.toml", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before LOBBYD_* overrides")
	host := flag.String("host", "", "Bind host (overrides config)")
	port := flag.Int("port", 0, "Bind port (overrides config)")
	maxLobbies := flag.Int("max-lobbies", 0, "Maximum concurrent lobbies (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("lobbyd %s (protocol %s)\n", Version, server.DefaultConfig().ServerVersion)
		os.Exit(0)
	}

	log, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("failed to load env file", zap.String("path", *envFile), zap.Error(err))
	}

	fileConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.String("path", *configPath), zap.Error(err))
	}
	cfg := fileConfig.ToServerConfig()

	// precedence: file, then environment, then flags
	if err := server.ApplyEnv(&cfg, nil); err != nil {
		log.Fatal("invalid environment override", zap.Error(err))
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *maxLobbies != 0 {
		cfg.MaxLobbies = *maxLobbies
	}

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	log.Info("lobbyd starting",
		zap.String("version", Version),
		zap.String("addr", cfg.Addr()),
		zap.String("websocket", fmt.Sprintf("ws://%s/ws", cfg.Addr())),
		zap.Int("max_lobbies", cfg.MaxLobbies),
		zap.String("config", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
	}

	st := srv.FinalStats()
	log.Info("server stopped",
		zap.String("uptime", st.Uptime),
		zap.Int64("total_connections", st.TotalConnections),
		zap.Int("active_players", st.ActivePlayers),
		zap.Int("active_lobbies", st.ActiveLobbies))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
