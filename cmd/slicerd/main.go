package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/printforge/slicerd/internal/api"
	"github.com/printforge/slicerd/internal/log"
	"github.com/printforge/slicerd/internal/model"
	"github.com/printforge/slicerd/internal/slicer"
	"github.com/printforge/slicerd/internal/storage"
	"github.com/printforge/slicerd/internal/store"
	"github.com/printforge/slicerd/internal/sweep"
)

var (
	config model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is slicerd.yaml in current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initSlicerd

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("slicerd failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "slicerd",
	Short:        "HTTP service wrapping the OrcaSlicer CLI",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the HTTP API and the slice job workers",
	RunE:  doServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of slicerd",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("slicerd: version info not available")
			return
		}

		fmt.Printf("slicerd: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:   %s\n", s.Value)
			}
		}
	},
}

func initSlicerd(cmd *cobra.Command, _ []string) error {
	// .env is optional, environment always applies
	_ = godotenv.Load()

	var err error
	config, err = model.LoadConfig(flagConfigFilePath)
	if err != nil {
		return err
	}

	// --verbose has precedence over the config file
	if flagVerbose {
		config.Verbose = true
	}

	slog.SetDefault(log.New(os.Stderr, config.Verbose))
	slog.Debug("slicerd configured", "addr", config.Addr(), "data_dir", config.Storage.DataDir)
	return nil
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(),
		slog.Group("slicerd",
			slog.String("cmd", "serve"),
			slog.Int("pid", os.Getpid()),
		))

	if err := config.EnsureDirs(); err != nil {
		return err
	}

	db, err := store.Open(config.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.ErrorContext(ctx, "closing database", "err", err)
		}
	}()

	files := storage.New(config.ModelsDir(), config.OutputsDir(), config.WorkDir())

	orch := slicer.NewOrchestrator(config, db, files)
	orch.Start(ctx)

	sweeper := sweep.New(db, files, config.Sweep.Interval, config.Sweep.Retention)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    config.Addr(),
		Handler: api.NewServer(config, db, files, orch).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.InfoContext(ctx, "shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "http shutdown", "err", err)
	}
	if err := sweeper.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "sweeper shutdown", "err", err)
	}
	// drain the job queue so in-flight slices reach a terminal state
	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "orchestrator shutdown", "err", err)
	}
	return nil
}
