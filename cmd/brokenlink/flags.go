package main

import (
	"fmt"

	"github.com/nao1215/brokenlink/internal/config"
	"github.com/spf13/cobra"
)

// addTransportFlags registers the request flags shared by scan and serve.
func addTransportFlags(cmd *cobra.Command) {
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Maximum number of redirects followed per request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().String("proxy", "",
		"Send requests through a proxy (e.g., socks5://127.0.0.1:1080)")
	cmd.Flags().Bool("respect-robots", false,
		"Do not crawl pages disallowed by robots.txt (they are still checked)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of page bytes read when extracting links")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .brokenlink.yaml in current or home directory)")
}

// applyTransportFlags copies the flags registered by addTransportFlags into
// cfg and loads the site configuration file.
func applyTransportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	cfg.MaxRedirects, err = cmd.Flags().GetInt("max-redirects")
	if err != nil {
		return err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return err
	}

	cfg.Proxy, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return err
	}

	cfg.RespectRobots, err = cmd.Flags().GetBool("respect-robots")
	if err != nil {
		return err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	return loadSiteConfigs(cfg)
}

// loadSiteConfigs reads the site file into cfg.SiteConfigs.
// If the user explicitly specified a config file path, a missing file is an
// error. Otherwise an empty configuration is used when no file is found.
func loadSiteConfigs(cfg *config.Config) error {
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		siteConfigs, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs = siteConfigs
	case cfg.ConfigFilePath != "":
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}
	return nil
}

// addDBDirFlag registers the archive directory flag.
func addDBDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the scan archive")
}
