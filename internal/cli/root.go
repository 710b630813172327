// Package cli implements the guildrelay command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	outputFmt string

	cfg    *config.Config
	cfgErr error
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "guildrelay",
	Short: "Discord gateway to webhook relay",
	Long: `guildrelay listens to a Discord bot's gateway session and forwards
message, member and reaction events as JSON envelopes to one webhook.

Run "guildrelay run" to start the relay. The other commands help inspect
configuration, spam signals and delivery statistics.`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/guildrelay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "yaml", "output format for inspection commands: yaml or json")
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
	if cfgErr != nil {
		return
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

// loadedConfig returns the configuration parsed at startup.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("failed to load config: %w", cfgErr)
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration was not loaded")
	}
	return cfg, nil
}

func newLogger(c *config.Config) *logging.Logger {
	return logging.New(logging.ParseLevel(c.Logging.Level), c.Logging.Format).
		With(logging.Service("guildrelay"))
}

// render writes v in the format selected by --output.
func render(w io.Writer, v any) error {
	switch outputFmt {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", outputFmt)
	}
}
