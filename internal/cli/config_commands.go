// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/config"
	fwhttp "github.com/rescale/fwrelease/internal/http"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fwrelease.ini",
		Long: `Configuration management commands for fwrelease.

Commands:
  init  - Write a settings file holding the defaults
  show  - Display the effective settings
  path  - Show the settings file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file holding the defaults",
		Long: `Write fwrelease.ini with every setting at its default value.

Use --force to overwrite an existing file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveProjectDir()
			if err != nil {
				return err
			}
			path := configPath(dir)

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view it.")
					return nil
				}
			}

			if err := config.Save(config.New(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveProjectDir()
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath(dir))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settings (%s)\n", configPath(dir))
			fmt.Fprintln(out, "==================")
			fmt.Fprintf(out, "Ledger file:        %s\n", cfg.Ledger.File)
			fmt.Fprintf(out, "Ledger backup:      %s\n", cfg.Ledger.BackupFile)
			fmt.Fprintf(out, "Release dir:        %s\n", cfg.Release.Dir)
			bundle := orDefault(cfg.Release.Bundle, "(search usbUpdateInfo.zip)")
			if cfg.Release.IsRemoteBundle() {
				bundle += " (downloaded)"
			}
			fmt.Fprintf(out, "Template bundle:    %s\n", bundle)
			fmt.Fprintf(out, "Project name:       %s\n", orDefault(cfg.Release.ProjectName, "(repository name)"))
			if len(cfg.Release.Exclude) > 0 {
				fmt.Fprintf(out, "Exclude:            %s\n", strings.Join(cfg.Release.Exclude, ", "))
			}
			fmt.Fprintf(out, "Notifications:      %t\n", cfg.Release.Notify)
			fmt.Fprintf(out, "Firmware info:      %t (prefix %s, dir %s)\n", cfg.FirmwareInfo.Enabled, cfg.FirmwareInfo.Prefix, cfg.FirmwareInfo.Dir)
			fmt.Fprintf(out, "Resolver:           strict=%t max_depth=%d denylist=%s\n",
				cfg.Resolver.Strict, cfg.Resolver.MaxDepth, strings.Join(cfg.Resolver.Denylist, ","))
			fmt.Fprintf(out, "Publish target:     %s\n", cfg.Publish.Target)
			switch cfg.Publish.Target {
			case config.PublishS3:
				fmt.Fprintf(out, "  Bucket:           %s\n", cfg.Publish.S3Bucket)
				fmt.Fprintf(out, "  Prefix:           %s\n", cfg.Publish.S3Prefix)
				fmt.Fprintf(out, "  Region:           %s\n", orDefault(cfg.Publish.S3Region, "(SDK default)"))
			case config.PublishAzure:
				fmt.Fprintf(out, "  SAS URL:          %s\n", maskSecret(cfg.Publish.AzureSASURL))
			case config.PublishHTTP:
				fmt.Fprintf(out, "  URL:              %s\n", cfg.Publish.HTTPURL)
				fmt.Fprintf(out, "  Token variable:   %s\n", cfg.Publish.HTTPTokenEnv)
			}
			fmt.Fprintf(out, "Proxy mode:         %s\n", cfg.Network.ProxyMode)
			if cfg.Network.ProxyHost != "" {
				fmt.Fprintf(out, "Proxy:              %s:%d\n", cfg.Network.ProxyHost, cfg.Network.ProxyPort)
			}
			if fwhttp.NeedsProxyPassword(cfg.Network) {
				fmt.Fprintf(out, "Proxy password:     missing (set %s)\n", fwhttp.ProxyPasswordEnv)
			}
			fmt.Fprintf(out, "Log level:          %s\n", cfg.Log.Level)
			if cfg.Log.File != "" {
				fmt.Fprintf(out, "Log file:           %s\n", cfg.Log.File)
			}

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "\nWarning: %v\n", err)
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the settings file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveProjectDir()
			if err != nil {
				return err
			}
			path := configPath(dir)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.ErrOrStderr(), "(file does not exist; defaults apply)")
			}
			return nil
		},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// maskSecret keeps the URL but hides its query string, which carries the SAS token.
func maskSecret(s string) string {
	if s == "" {
		return "(from FWRELEASE_AZURE_SAS_URL)"
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i] + "?***"
	}
	return s
}
