package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/notification"
	notificationPostgres "github.com/marvellous-media/marvellous-manager/internal/notification/postgres"
	"github.com/marvellous-media/marvellous-manager/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish notification events through the push pipeline for testing and debugging`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a notification event",
	Long:  `Publish a notification event to the event bus and deliver it through the configured edge function`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventRecipients []string
	eventTitle      string
	eventBody       string
)

func publishTestEvent(ctx context.Context, eventType string) error {
	if !slices.Contains(events.NotificationTypes, eventType) {
		return fmt.Errorf("unknown event type %q, expected one of %v", eventType, events.NotificationTypes)
	}
	if len(eventRecipients) == 0 {
		return fmt.Errorf("at least one --to user id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger.Init(cfg.Observability.Logging.Env, cfg.Observability.Logging.Level)
	log := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	client := notification.NewEdgeFunctionClient(cfg.Notification.EdgeFunctionURL, cfg.Notification.APIKey, cfg.Notification.Timeout)
	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		MaxWorkers:   1,
		JobQueueSize: 1,
		SendTimeout:  cfg.Notification.Timeout,
	}, client, notificationPostgres.NewNotificationRepository(db.Gorm), log)

	bus := events.NewEventBus(log)
	notification.NewEventHandler(dispatcher, log).RegisterEventHandlers(bus)

	evt := events.NewNotificationEvent(eventType, eventRecipients, eventTitle, eventBody, map[string]interface{}{
		"source": "cli-command",
	})

	log.Info("publishing event", "event_type", eventType, "event_id", evt.EventID())
	if err := bus.PublishSync(ctx, evt); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher did not drain: %v\n", err)
	}

	log.Info("event published")
	return nil
}

func init() {
	publishEventCmd.Flags().StringSliceVar(&eventRecipients, "to", nil, "Recipient user ids")
	publishEventCmd.Flags().StringVar(&eventTitle, "title", "Test notification", "Notification title")
	publishEventCmd.Flags().StringVar(&eventBody, "body", "This is a test notification", "Notification body")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
