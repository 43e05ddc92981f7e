package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/docflow/internal/client"
	"github.com/cuongbtq/docflow/internal/config"
	"github.com/cuongbtq/docflow/internal/guard"
	"github.com/cuongbtq/docflow/internal/session"
	"github.com/cuongbtq/docflow/internal/workflow"
	"github.com/cuongbtq/docflow/shared/logger"
)

const envServerURL = "DOCFLOW_SERVER_URL"

var (
	cfgFile      string
	cachePath    string
	serverURL    string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "docflow",
	Short: "Convert scans to documents and generate documents from prompts",
	Long: `docflow signs you in against the auth backend and drives the docflow API.

Examples:
  docflow signin --email me@example.com --password secret
  docflow ocr scan1.png scan2.png --docx --pdf
  docflow docgen "Draft a leave request" --attachment notes.pdf
  docflow records
  docflow admin users`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && verbose {
			log.Println("No .env file found, using environment variables")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "service config file providing backend and admin settings (optional)",
	)
	rootCmd.PersistentFlags().StringVar(
		&cachePath, "cache", "", "session cache file (default: ~/.docflow/session.json)",
	)
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", "", "docflow API URL (default: $DOCFLOW_SERVER_URL or http://localhost:8080)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "log debug output to stderr",
	)
}

// app holds what the commands share once flags are parsed
type app struct {
	logger *logger.Logger
	guard  *guard.Guard
	store  *session.Store
}

func newApp(ctx context.Context) (*app, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	appLogger, err := logger.New(&logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	backendURL := os.Getenv(config.EnvBackendURL)
	backendKey := os.Getenv(config.EnvBackendKey)
	admins := []string{config.DefaultAdminEmail}
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		backendURL, backendKey = cfg.Backend.URL, cfg.Backend.AccessKey
		admins = cfg.Auth.AdminEmails
	}

	path := cachePath
	if path == "" {
		if path, err = session.DefaultCachePath(); err != nil {
			return nil, err
		}
	}

	g := guard.New(backendURL, backendKey)
	var backend session.Backend
	if g.Ready() {
		backend = session.NewGoTrue(g, nil, &session.FileCache{Path: path}, appLogger.Component("auth"))
	}

	store := session.NewStore(g, backend, session.AdminEmails(admins...), appLogger.Component("session"))
	store.Initialize(ctx)

	return &app{logger: appLogger, guard: g, store: store}, nil
}

// api returns a client authenticated with the current session, if any
func (a *app) api() *client.Client {
	token := ""
	if snap := a.store.Current(); snap.Session != nil {
		token = snap.Session.AccessToken
	}
	return client.New(apiURL(), token, nil)
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Close()
}

func apiURL() string {
	switch {
	case serverURL != "":
		return strings.TrimRight(serverURL, "/")
	case os.Getenv(envServerURL) != "":
		return strings.TrimRight(os.Getenv(envServerURL), "/")
	default:
		return "http://localhost:8080"
	}
}

// withApp runs fn with a fresh app and prints what it returns
func withApp(fn func(cmd *cobra.Command, a *app, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		out, err := fn(cmd, a, args)
		if out != nil {
			if perr := client.OutputTo(cmd.OutOrStdout(), client.ParseOutputFormat(outputFormat), out); perr != nil {
				return perr
			}
		}
		if err != nil {
			cmd.PrintErrln("Error:", userMessage(err))
		}
		return err
	}
}

func userMessage(err error) string {
	var fe *session.FriendlyError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return workflow.Message(err)
}
