package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/busyline"
	"pkt.systems/busyline/httpapi"
	"pkt.systems/busyline/internal/agentlink"
	"pkt.systems/busyline/internal/appconfig"
	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var noTmux bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the busyline daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			serverCfg := busyline.ServerConfig{
				Service:    cfg.ServiceConfig(),
				HTTP:       toHTTPConfig(cfg.HTTP),
				Tmux:       toTmuxConfig(cfg.Tmux),
				Agents:     toSessionConfigs(cfg.Sessions),
				HubHistory: 1000,
			}
			deps := busyline.ServerDeps{
				Logger:  logger,
				Metrics: metrics.New(),
			}
			opts := []busyline.ServerOption{busyline.WithHTTP(), busyline.WithAgents()}
			if !noTmux {
				opts = append(opts, busyline.WithTmux())
			}
			server, err := busyline.New(serverCfg, deps, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Runtime display edits win over the file until the file changes
			// again; a reload pushes the full display section as a patch.
			watcher, err := appconfig.NewWatcher(cfgPath, logger, func(next appconfig.Config) {
				reloadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := server.Service().Configure(reloadCtx, schema.ConfigureRequest{Display: next.Display.Patch()}); err != nil {
					logger.Warn("config reload apply failed", "err", err)
				}
			})
			if err != nil {
				logger.Warn("config watch disabled", "err", err)
			}
			if watcher != nil {
				go func() {
					if err := watcher.Run(ctx); err != nil {
						logger.Warn("config watch stopped", "err", err)
					}
				}()
			}

			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noTmux, "no-tmux", false, "disable the tmux status publisher and focus watcher")
	return cmd
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		SocketPath: cfg.SocketPath,
		Addr:       cfg.Addr,
		BasePath:   cfg.BasePath,
	}
}

func toTmuxConfig(cfg appconfig.TmuxConfig) busyline.TmuxConfig {
	return busyline.TmuxConfig{
		Option:       cfg.Option,
		ConnOption:   cfg.ConnOption,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		Refresh:      cfg.Refresh,
	}
}

func toSessionConfigs(sessions []appconfig.SessionConfig) []agentlink.SessionConfig {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]agentlink.SessionConfig, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, agentlink.SessionConfig{
			ID:   schema.ConnID(session.ID),
			Name: session.Name,
			URL:  session.URL,
		})
	}
	return out
}
