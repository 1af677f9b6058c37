package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/sidereal-labs/opskit/internal/infra/redis"
	"github.com/sidereal-labs/opskit/internal/pubsub"
)

var emitPayload string

var emitCmd = &cobra.Command{
	Use:   "emit [event]",
	Short: "Publish an event to the message exchange",
	Args:  cobra.ExactArgs(1),
	Run:   runEmit,
}

func init() {
	emitCmd.Flags().StringVar(&emitPayload, "payload", "", "JSON payload attached to the event")
	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfg.Redis.URL == "" {
		slog.Error("No Redis broker configured")
		os.Exit(1)
	}

	var payload map[string]any
	if emitPayload != "" {
		if err := json.Unmarshal([]byte(emitPayload), &payload); err != nil {
			slog.Error("Invalid payload", "error", err)
			os.Exit(1)
		}
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event := pubsub.Event(strings.ToUpper(args[0]))
	publisher := pubsub.NewPublisher(client, cfg.PubSub, slog.Default())

	if err := publisher.SendEvent(ctx, event, payload); err != nil {
		slog.Error("Failed to publish event", "error", err)
		os.Exit(1)
	}

	slog.Info("Event published", "event", event)
}
