package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pageproxy/internal/config"
	"pageproxy/internal/logger"
	"pageproxy/internal/storage"
	"pageproxy/pkg/api"
	"pageproxy/pkg/model"
)

var (
	configPath string
	logLevel   string
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "pageproxy",
	Short: "Route browser page traffic through per-page upstream proxies",
	Long: `pageproxy attaches to a Chromium DevTools endpoint, intercepts page requests
and replays them through an upstream HTTP or SOCKS proxy chosen per page.

Configuration is read from a YAML file (--config) and PAGEPROXY_* environment
variables; command-line flags take precedence over both.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("devtools", "", "DevTools HTTP endpoint, e.g. http://127.0.0.1:9222")

	rootCmd.AddCommand(newRunCmd(), newTargetsCmd(), newEventsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig 读取配置并叠加通用命令行参数
func loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if v, _ := cmd.Flags().GetString("devtools"); v != "" {
		cfg.Browser.DevToolsURL = v
	}
	return cfg, logger.New(cfg.LoggerOptions()), nil
}

func sessionConfig(cfg *config.Config) model.SessionConfig {
	return model.SessionConfig{
		DevToolsURL:     cfg.Browser.DevToolsURL,
		Concurrency:     cfg.Browser.Concurrency,
		PendingCapacity: cfg.Browser.PendingCapacity,
	}
}

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List page targets exposed by the DevTools endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc := api.NewService(api.Options{Logger: l})
			defer svc.Close()

			id, err := svc.StartSession(sessionConfig(cfg))
			if err != nil {
				return err
			}
			targets, err := svc.ListTargets(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range targets {
				fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.URL, t.Title)
			}
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	var (
		sessionID string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recorded interception events from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
			if err != nil {
				return err
			}
			defer storage.Close(db)

			events, err := storage.NewEventRepo(db).List(cmd.Context(), storage.EventQuery{
				Session: model.SessionID(sessionID),
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range events {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s %s\t%d\t%s\n", e.Timestamp, e.Session, e.Outcome, e.Method, e.URL, e.StatusCode, e.Reason+e.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only events of this session")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events, 0 for all")
	return cmd
}
