package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pageproxy/internal/config"
	"pageproxy/internal/logger"
	"pageproxy/internal/storage"
	"pageproxy/pkg/api"
	"pageproxy/pkg/model"
)

// runFlags run 命令参数
type runFlags struct {
	proxy          string
	onlyNavigation bool
	priority       int
	targets        []string
	pageProxies    map[string]string
	history        bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to page targets and proxy their requests until interrupted",
		Long: `Attach to one or more page targets and route their requests through the
global proxy. Individual pages can use a different proxy (or none) with
--page-proxy TARGET=URL; an empty URL disables proxying for that page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return run(cmd.Context(), cfg, f, l)
		},
	}
	cmd.Flags().StringVar(&f.proxy, "proxy", "", "global upstream proxy URL (http, https, socks5, socks5h)")
	cmd.Flags().BoolVar(&f.onlyNavigation, "only-navigation", false, "only proxy navigation requests")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "cooperative intercept resolution priority")
	cmd.Flags().StringSliceVarP(&f.targets, "target", "t", nil, "target IDs to attach (default: first page)")
	cmd.Flags().StringToStringVar(&f.pageProxies, "page-proxy", nil, "per-target proxy override TARGET=URL")
	cmd.Flags().BoolVar(&f.history, "history", true, "record events to the sqlite history database")
	return cmd
}

// apply 只覆盖显式给出的参数
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("proxy") {
		cfg.Proxy.URL = f.proxy
	}
	if flags.Changed("only-navigation") {
		cfg.Proxy.OnlyNavigation = model.Bool(f.onlyNavigation)
	}
	if flags.Changed("priority") {
		cfg.Proxy.InterceptResolutionPriority = model.Int(f.priority)
	}
}

func run(ctx context.Context, cfg *config.Config, f *runFlags, l logger.Logger) error {
	opts := api.Options{Defaults: cfg.ProxyDefaults(), Logger: l}
	if f.history {
		db, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
		if err != nil {
			return err
		}
		defer storage.Close(db)
		opts.History = storage.NewEventRepo(db)
	}

	svc := api.NewService(opts)
	defer svc.Close()

	id, err := svc.StartSession(sessionConfig(cfg))
	if err != nil {
		return err
	}
	events, err := svc.SubscribeEvents(id)
	if err != nil {
		return err
	}

	targets := f.targets
	if len(targets) == 0 {
		targets = []string{""}
	}
	for _, t := range targets {
		attached, err := svc.AttachTarget(ctx, id, model.TargetID(t))
		if err != nil {
			return fmt.Errorf("attach %q: %w", t, err)
		}
		if proxyURL, ok := f.pageProxies[string(attached)]; ok {
			if err := svc.UseProxy(ctx, id, attached, proxyURL, model.ProxyOptions{}); err != nil {
				return fmt.Errorf("page proxy for %s: %w", attached, err)
			}
		}
		l.Info("页面已接管", "target", string(attached))
	}

	for {
		select {
		case <-ctx.Done():
			l.Info("收到退出信号，正在停止")
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			l.Info("拦截事件",
				"target", string(evt.Target),
				"outcome", string(evt.Outcome),
				"method", evt.Method,
				"url", evt.URL,
				"status", evt.StatusCode,
				"reason", evt.Reason,
				"error", evt.Error,
				"durationMs", evt.DurationMS,
			)
		}
	}
}
