package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/internal/appconfig"
	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run busyline diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor config ok", "config", configPath, "sessions", len(cfg.Sessions))

			if err := checkStateDir(cfg.StateDir); err != nil {
				return err
			}
			logger.Info("doctor state dir ok", "dir", cfg.StateDir)

			if err := checkTmux(cmd.Context(), logger); err != nil {
				logger.Warn("doctor tmux unavailable", "err", err)
			}

			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			var health struct {
				OK      bool   `json:"ok"`
				Version string `json:"version"`
			}
			if err := client.getJSON(cmd.Context(), "/healthz", &health); err != nil {
				logger.Warn("doctor daemon unreachable; start it with: busyline serve", "err", err)
				return nil
			}
			logger.Info("doctor daemon ok", "version", health.Version)

			var conns schema.ListConnsResponse
			if err := client.getJSON(cmd.Context(), "/api/conns", &conns); err != nil {
				return err
			}
			linked := 0
			for _, conn := range conns.Conns {
				if conn.Linked {
					linked++
				}
			}
			logger.Info("doctor conns ok", "count", len(conns.Conns), "linked", linked, "attached", conns.Attached)
			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func checkStateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("state_dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	return os.Remove(probe)
}

func checkTmux(ctx context.Context, logger pslog.Logger) error {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(cctx, path, "-V").Output()
	if err != nil {
		return err
	}
	logger.Info("doctor tmux ok", "version", strings.TrimSpace(string(out)))
	return nil
}
