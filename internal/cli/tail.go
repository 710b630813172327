package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guildrelay/guildrelay/common/messaging"
)

var tailCmd = &cobra.Command{
	Use:   "tail [event_type]",
	Short: "Print envelopes mirrored to NATS by a running relay",
	Long: `Subscribes to the relay's NATS mirror subjects and prints one line per
envelope until interrupted. Requires nats.url to point at the same server the
relay publishes to.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}
	nc, err := connectNATS(c, newLogger(c))
	if err != nil {
		return err
	}
	defer nc.Close()

	subject := messaging.AllEventsSubject(c.NATS.SubjectPrefix)
	if len(args) == 1 {
		subject = messaging.EventSubject(c.NATS.SubjectPrefix, args[0])
	}

	out := cmd.OutOrStdout()
	sub, err := nc.Subscribe(subject, func(_ context.Context, msg *messaging.Message) error {
		return printEnvelope(out, msg)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", subject)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

// printEnvelope writes "<timestamp> <event_type> <delivery_id> <data>".
func printEnvelope(w io.Writer, msg *messaging.Message) error {
	var env struct {
		EventType string          `json:"event_type"`
		Timestamp string          `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Errorf("decode envelope on %s: %w", msg.Subject, err)
	}
	deliveryID := msg.Header(messaging.HeaderDeliveryID)
	if deliveryID == "" {
		deliveryID = "-"
	}
	_, err := fmt.Fprintf(w, "%s %s %s %s\n", env.Timestamp, env.EventType, deliveryID, env.Data)
	return err
}
