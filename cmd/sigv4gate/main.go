// ABOUTME: Entry point for the sigv4gate authenticating server
// ABOUTME: Serves SigV4-verified HTTPS traffic in front of a demo application

package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/driftlock/sigv4gate/internal/config"
	"github.com/driftlock/sigv4gate/internal/server"
	"github.com/driftlock/sigv4gate/internal/sigv4"
	"github.com/driftlock/sigv4gate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _            _  _               _
 ___(_) __ ___  _| || |  __ _  __ _| |_ ___
/ __| |/ _' \ \/ / || |_/ _' |/ _' | __/ _ \
\__ \ | (_| |\  /|__   _ (_| | (_| | ||  __/
|___/_|\__, | \/    |_|\__, |\__,_|\__\___|
       |___/           |___/
`

// getConfigPath returns the path to the config file.
// Priority: SIGV4GATE_CONFIG env var > XDG_CONFIG_HOME/sigv4gate/config.yaml > ~/.config/sigv4gate/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SIGV4GATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sigv4gate", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sigv4gate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the authenticating server")
		fmt.Println("  add-user --name NAME     Create a user and an access key pair")
		fmt.Println("  health                   Check config and credential store health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "add-user":
		err = runAddUser(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Scope:    %s/%s\n", cfg.Gate.Region, cfg.Gate.Service)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s (%s)\n", cfg.Database.DSN, cfg.Database.Driver)
	fmt.Println()

	logger.Info("starting sigv4gate",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"region", cfg.Gate.Region,
		"service", cfg.Gate.Service,
	)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	keys := store.NewKeyStore(db, cfg.Database.Driver, cfg.Gate.Partition)

	pipeline, err := sigv4.NewPipeline(sigv4.PipelineConfig{
		Region:              cfg.Gate.Region,
		Service:             cfg.Gate.Service,
		AllowedMethods:      cfg.Gate.AllowedMethods,
		AllowedContentTypes: cfg.Gate.AllowedContentTypes,
		SignedHeaders:       sigv4.SignedHeaderRequirements{Always: cfg.Gate.RequiredSignedHeaders},
		Options: sigv4.SignatureOptions{
			ClockSkew:            cfg.Gate.ClockSkew,
			AllowUnsignedPayload: cfg.Gate.AllowUnsignedPayload,
		},
		Keys:    keys,
		Handler: newApplication(),
		Errors:  sigv4.NewXMLErrorMapper(cfg.Gate.ErrorNamespace),
		Logger:  logger.With("component", "sigv4"),
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	if err := pipeline.Ready(ctx); err != nil {
		return fmt.Errorf("pipeline not ready: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
	}

	factory := server.NewFactory(pipeline)

	if cfg.Server.CertFile == "" {
		// No TLS material configured: serve plaintext. Intended for local
		// development behind a TLS-terminating proxy.
		logger.Warn("serving without TLS")
		httpSrv := &http.Server{Handler: factory.Build()}
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
		err := httpSrv.Serve(listener)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}

	cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
	if err != nil {
		listener.Close()
		return fmt.Errorf("loading TLS key pair: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	incoming := server.NewTLSIncoming(listener, tlsConfig, cfg.Server.HandshakeTimeout)
	return server.NewServer(incoming, factory).Serve(ctx)
}

// openDatabase opens the credential database. The sqlite driver gets the
// schema bootstrap; other drivers are expected to be provisioned already.
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == store.SQLiteDriverName {
		return store.OpenSQLite(cfg.DSN)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("credential store unreachable: %w", err)
	}

	fmt.Println("healthy")
	return nil
}
