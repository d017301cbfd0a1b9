package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"marunose/internal/config"
	"marunose/internal/db"
	"marunose/internal/logger"
	"marunose/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "marunose",
		Short:         "API key gateway for GitHub repository summaries",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	})
	root.AddCommand(newKeysCmd(opts))
	return root
}

func loadConfig(opts *rootOptions) (*config.Config, string, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to load %s: %w", opts.envFile, err)
		}
	}
	return config.LoadConfig(opts.configPath)
}

func runServe(ctx context.Context, opts *rootOptions) error {
	// Load configuration
	cfg, warning, err := loadConfig(opts)
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		return err
	}

	// Setup logger
	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	if warning != "" {
		log.Warn(warning)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Error initializing application", "error", err)
		return err
	}
	if err := a.start(); err != nil {
		log.Error("Error starting background workers", "error", err)
		a.close()
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err, ok := <-serverErr:
		if ok {
			log.Error("Failed to start server", "error", err)
			a.close()
			return err
		}
	}
	log.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := a.close(); err != nil {
		log.Error("Error releasing resources", "error", err)
	}

	log.Info("Server exiting")
	return nil
}

func newKeysCmd(opts *rootOptions) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage client API keys",
	}

	withDB := func(fn func(ctx context.Context, s db.Service, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			s, err := db.NewService(cfg.Database)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return fn(ctx, s, cmd.OutOrStdout(), args)
		}
	}

	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys with masked values",
		Args:  cobra.NoArgs,
		RunE:  withDB(listKeys),
	})

	var name string
	var limit int
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a new key and print it once",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, s db.Service, out io.Writer, _ []string) error {
			return createKey(ctx, s, out, name, limit)
		}),
	}
	create.Flags().StringVar(&name, "name", "", "display name of the key")
	create.Flags().IntVar(&limit, "limit", 1000, "monthly request limit")
	create.MarkFlagRequired("name")
	keys.AddCommand(create)

	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Deactivate a key",
		Args:  cobra.ExactArgs(1),
		RunE:  withDB(revokeKey),
	})
	keys.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(ctx context.Context, s db.Service, out io.Writer, args []string) error {
			if err := s.DeleteKey(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %s\n", args[0])
			return nil
		}),
	})
	return keys
}

func listKeys(ctx context.Context, s db.Service, out io.Writer, _ []string) error {
	keys, err := s.GetAllKeys(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKEY\tACTIVE\tUSAGE\tLIMIT")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\n", k.ID, k.Name, model.MaskKey(k.Key), k.IsActive, k.Usage, k.MonthlyLimit)
	}
	return w.Flush()
}

func createKey(ctx context.Context, s db.Service, out io.Writer, name string, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	value, err := model.GenerateKey()
	if err != nil {
		return err
	}
	key := model.APIKey{Name: name, Key: value, IsActive: true, MonthlyLimit: limit}
	if err := s.CreateKey(ctx, &key); err != nil {
		return err
	}
	fmt.Fprintf(out, "id:  %s\nkey: %s\n", key.ID, key.Key)
	return nil
}

func revokeKey(ctx context.Context, s db.Service, out io.Writer, args []string) error {
	inactive := false
	key, err := s.UpdateKey(ctx, args[0], db.KeyUpdate{IsActive: &inactive})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked %s (%s)\n", key.ID, key.Name)
	return nil
}
