package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	chatwidget "github.com/MegaGrindStone/chat-widget"
	"github.com/MegaGrindStone/chat-widget/internal/handlers"
	"github.com/MegaGrindStone/chat-widget/internal/render"
	"github.com/MegaGrindStone/chat-widget/internal/services"
	"github.com/spf13/cobra"
)

const appDir = "chatwidget"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		port    string
	)

	cmd := &cobra.Command{
		Use:   "chatwidget",
		Short: "Serve the internship assistant chat widget",
		Long: `Serves a chat page whose conversation is driven server-side and pushed to the
browser over server-sent events. Replies come from the configured backend.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig(cfgPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath(), "path to the YAML config file")
	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on, overrides the config file")

	return cmd
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cfgDir, appDir, "config.yaml")
}

// readConfig loads the config file. A missing file at the default location yields the defaults; a
// missing file that was asked for explicitly is an error.
func readConfig(path string, explicit bool) (config, error) {
	cfgFile, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			log.Printf("No config file at %s, using defaults", path)
			return defaultConfig(), nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	return loadConfig(cfgFile)
}

func run(cfg config) error {
	logger, err := cfg.Log.logger(os.Stderr)
	if err != nil {
		return err
	}

	transports, err := cfg.Backend.transports(cfg.SystemPrompt, logger)
	if err != nil {
		return fmt.Errorf("error configuring backend: %w", err)
	}

	storePath := cfg.StorePath
	if storePath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("error getting user config dir: %w", err)
		}
		if err := os.MkdirAll(filepath.Join(cfgDir, appDir), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
		storePath = filepath.Join(cfgDir, appDir, "store.db")
	}
	boltDB, err := services.NewBoltDB(storePath)
	if err != nil {
		return err
	}
	defer boltDB.Close()

	renderer, err := render.NewRenderer(chatwidget.TemplateFS, cfg.AssistantName)
	if err != nil {
		return err
	}

	m, err := handlers.NewMain(chatwidget.TemplateFS, renderer, transports, boltDB, handlers.Options{
		Welcome:     cfg.Welcome,
		Examples:    cfg.Examples,
		MaxSessions: cfg.Sessions.Max,
		SessionTTL:  cfg.Sessions.IdleTimeout,
	}, logger)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(chatwidget.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/ui/send", m.HandleSend)
	mux.HandleFunc("/ui/ask", m.HandleAsk)
	mux.HandleFunc("/ui/reset", m.HandleReset)
	mux.HandleFunc("/ui/key", m.HandleKey)
	mux.HandleFunc("/sse", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
	return nil
}
