package cli

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidereal-labs/opskit/internal/notify"
)

var notifyLevel string

var notifyCmd = &cobra.Command{
	Use:   "notify [message]",
	Short: "Send a one-shot operator notification",
	Args:  cobra.MinimumNArgs(1),
	Run:   runNotify,
}

func init() {
	notifyCmd.Flags().StringVar(&notifyLevel, "level", "INFO", "notification level (DEBUG..CRITICAL)")
	rootCmd.AddCommand(notifyCmd)
}

func runNotify(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	level, err := notify.ParseLevel(notifyLevel)
	if err != nil {
		slog.Error("Invalid level", "error", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(cfg.Notifications)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	message := strings.Join(args, " ")
	if err := dispatcher.Send(ctx, level, message, nil); err != nil {
		slog.Error("Failed to send notification", "error", err)
		os.Exit(1)
	}

	slog.Info("Notification sent", "level", level)
}
