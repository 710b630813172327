package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guildrelay/guildrelay/internal/filter"
	"github.com/guildrelay/guildrelay/internal/normalizer"
	"github.com/guildrelay/guildrelay/internal/pipeline"
	"github.com/guildrelay/guildrelay/internal/relay"
	"github.com/guildrelay/guildrelay/internal/synthetic"
)

var (
	sendTestSeed int64
	sendTestURL  string
)

var sendTestCmd = &cobra.Command{
	Use:   "send-test [event_type]",
	Short: "Deliver a synthetic event to the webhook",
	Long: fmt.Sprintf(`Builds a fake event, runs it through the normal pipeline and posts the
envelope to the configured relay URL. event_type defaults to %s.`, normalizer.EventMessageCreate),
	Example: `  guildrelay send-test
  guildrelay send-test memberAdd --url http://localhost:5678/webhook/router`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: normalizer.EventTypes,
	RunE:      runSendTest,
}

func init() {
	sendTestCmd.Flags().Int64Var(&sendTestSeed, "seed", 0, "faker seed (0 picks one at random)")
	sendTestCmd.Flags().StringVar(&sendTestURL, "url", "", "override relay.url")
	rootCmd.AddCommand(sendTestCmd)
}

func runSendTest(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}
	eventType := normalizer.EventMessageCreate
	if len(args) == 1 {
		eventType = args[0]
	}
	url := c.Relay.URL
	if sendTestURL != "" {
		url = sendTestURL
	}
	logger := newLogger(c)

	gen := synthetic.New(sendTestSeed)
	p := pipeline.New(filter.Scope{}, normalizer.New(gen, normalizer.WithLogger(logger)), logger)
	fwd, err := gen.Forward(cmd.Context(), p, eventType)
	if err != nil {
		return err
	}

	dispatcher := relay.NewDispatcher(relay.Config{
		URL:           url,
		Timeout:       c.Relay.Timeout,
		UserAgent:     c.Relay.UserAgent,
		SigningSecret: c.Relay.SigningSecret,
	}, relay.WithLogger(logger))

	outcome := dispatcher.Deliver(context.WithoutCancel(cmd.Context()), fwd.EventType, fwd.Data)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", fwd.EventType, outcome)
	if outcome != relay.OutcomeDelivered {
		return fmt.Errorf("test event was not delivered (%s)", outcome)
	}
	return nil
}
