//go:build !test

package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/byosamah/volteria-sub006/internal/api"
	"github.com/byosamah/volteria-sub006/internal/config"
)

var (
	serveListen     string
	serveDBPath     string
	serveConfigFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch HTTP service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(serveConfigFile)
		if err != nil {
			return err
		}

		// Flags beat file and environment values
		if cmd.Flags().Changed("listen") {
			cfg.Listen = serveListen
		}
		if cmd.Flags().Changed("db-path") {
			cfg.DBPath = serveDBPath
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		db, err := cfg.InitializeDatabase()
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		// Setup router
		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		// Register API routes
		a := api.NewAPIWithOptions(db, api.Options{
			PortRangeMin:      cfg.PortRangeMin,
			PortRangeMax:      cfg.PortRangeMax,
			LivenessThreshold: cfg.LivenessThreshold,
			AwaitTimeout:      cfg.AwaitTimeout,
			PollInterval:      cfg.PollInterval,
		})
		a.RegisterRoutes(r)

		// Health check endpoint
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if _, err := fmt.Fprintln(w, "Volteria web service is running!"); err != nil {
				log.Printf("failed to write response: %v", err)
			}
		})

		fmt.Printf("Starting Volteria web service on %s...\n", cfg.Listen)
		if err := http.ListenAndServe(cfg.Listen, r); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Path to the SQLite database file")
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "Path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}
