package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildrelay/guildrelay/common/relaystats"
	"github.com/guildrelay/guildrelay/internal/detect"
)

var signalsCmd = &cobra.Command{
	Use:   "signals <text>",
	Short: "Show the URLs and spam signals detected in a message",
	Example: `  guildrelay signals "Escríbeme por privado, tengo descuento https://x.co"
  guildrelay signals -o json "mira mi canal"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report := detect.Analyze(strings.Join(args, " "))
		return render(cmd.OutOrStdout(), signalsOutput{
			URLs:         report.URLs,
			SpamPatterns: detect.Strings(report.Patterns),
			HasLinks:     report.HasLinks,
		})
	},
}

type signalsOutput struct {
	URLs         []string `json:"urls_detected" yaml:"urls_detected"`
	SpamPatterns []string `json:"spam_patterns" yaml:"spam_patterns"`
	HasLinks     bool     `json:"has_links" yaml:"has_links"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadedConfig()
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), c.Redacted())
	},
}

var (
	statsGuild string
	statsSince time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery counters recorded in Redis",
	Long: `Without --guild, lists guilds with recent activity. With --guild, shows
that guild's totals, outcomes and event types. Use "dm" for direct messages.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsGuild, "guild", "", "guild id to show")
	statsCmd.Flags().DurationVar(&statsSince, "since", 24*time.Hour, "activity window when listing guilds")

	rootCmd.AddCommand(signalsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}
	client, err := relaystats.NewClient(c.Redis.URL, instanceID())
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if statsGuild != "" {
		stats, err := client.GetStats(ctx, statsGuild)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), stats)
	}

	guilds, err := client.ListGuilds(ctx, statsSince)
	if err != nil {
		return err
	}
	if len(guilds) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No guild activity in the last %s\n", statsSince)
		return nil
	}
	return render(cmd.OutOrStdout(), guilds)
}
