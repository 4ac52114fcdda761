package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/bootstrap"
	"pkt.systems/pslog"
)

func newBootstrapCmd() *cobra.Command {
	var outputDir string
	var overwrite bool
	var sets []string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Generate the default config and tmux snippet",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			overrides, err := parseOverrides(sets)
			if err != nil {
				return err
			}
			paths, err := bootstrap.WriteBootstrapWithOptions(outputDir, overwrite, bootstrap.Options{Overrides: overrides})
			if err != nil {
				return err
			}
			logger.Info("bootstrap wrote", "path", paths.ConfigPath, "name", "config.yaml")
			logger.Info("bootstrap wrote", "path", paths.TmuxConfPath, "name", "busyline.tmux.conf")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite existing files")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "config override as path=value (repeatable)")
	return cmd
}

func parseOverrides(sets []string) ([]bootstrap.ConfigOverride, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	overrides := make([]bootstrap.ConfigOverride, 0, len(sets))
	for _, set := range sets {
		key, raw, ok := strings.Cut(set, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q; expected path=value", set)
		}
		overrides = append(overrides, bootstrap.ConfigOverride{
			Path:  strings.TrimSpace(key),
			Value: parseOverrideValue(raw),
		})
	}
	return overrides, nil
}

// parseOverrideValue keeps bools and numbers typed so the generated YAML
// round-trips; everything else stays a string.
func parseOverrideValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "true" || trimmed == "false" {
		return trimmed == "true"
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return raw
}
