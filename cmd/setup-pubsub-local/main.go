package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"greencredits/internal/config"
	"greencredits/internal/logger"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultRefreshTopic = "dashboard-refreshed"

func main() {
	reset := flag.Bool("reset", false, "Delete every topic and subscription on the emulator first")
	pushEndpoint := flag.String("push-endpoint", "", "Optional push endpoint for the refresh subscription")
	flag.Parse()

	// Load environment variables early for local development
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, relying on system environment variables.")
	}

	logger := logger.New()
	logger.Info().Msg("Starting Pub/Sub setup for the local emulator.")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Failed to load config: %v", err)
	}
	if cfg.PubSubEmulatorHost == "" {
		logger.Fatal().Msg("PUBSUB_EMULATOR_HOST must be set; this tool only talks to the emulator.")
	}
	topicID := cfg.PubSubRefreshTopic
	if topicID == "" {
		topicID = defaultRefreshTopic
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID,
		option.WithEndpoint(cfg.PubSubEmulatorHost),
		option.WithoutAuthentication(),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Pub/Sub client: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Msgf("Failed to close pubsub client: %v", err)
		}
	}()

	if *reset {
		resetEmulator(ctx, client, logger)
	}

	topic := ensureTopic(ctx, client, logger, topicID, 7*24*time.Hour)
	ensureSubscription(ctx, client, logger, topicID+"-sub", pubsub.SubscriptionConfig{
		Topic:       topic,
		PushConfig:  pubsub.PushConfig{Endpoint: *pushEndpoint},
		AckDeadline: 60 * time.Second,
	})

	logger.Info().Str("topic", topicID).Msg("Pub/Sub setup for local emulator complete.")
}

// resetEmulator deletes all topics and subscriptions. Emulator only.
func resetEmulator(ctx context.Context, client *pubsub.Client, logger zerolog.Logger) {
	subs := client.Subscriptions(ctx)
	for {
		sub, err := subs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Fatal().Msgf("Failed to list subscriptions: %v", err)
		}
		if err := sub.Delete(ctx); err != nil {
			logger.Warn().Msgf("Failed to delete subscription %s: %v", sub.ID(), err)
		}
	}

	topics := client.Topics(ctx)
	for {
		topic, err := topics.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Fatal().Msgf("Failed to list topics: %v", err)
		}
		if err := topic.Delete(ctx); err != nil {
			logger.Warn().Msgf("Failed to delete topic %s: %v", topic.ID(), err)
		}
	}
	logger.Info().Msg("Emulator reset complete")
}

func ensureTopic(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, topicID string, retention time.Duration) *pubsub.Topic {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		logger.Fatal().Msgf("Failed to check if topic %s exists: %v", topicID, err)
	}
	if exists {
		logger.Info().Msgf("Topic %s already exists", topicID)
		return topic
	}

	logger.Info().Msgf("Creating topic %s with %v retention", topicID, retention)
	topic, err = client.CreateTopicWithConfig(ctx, topicID, &pubsub.TopicConfig{RetentionDuration: retention})
	if err != nil {
		logger.Fatal().Msgf("Failed to create topic %s: %v", topicID, err)
	}
	return topic
}

func ensureSubscription(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, subID string, cfg pubsub.SubscriptionConfig) {
	sub := client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		logger.Fatal().Msgf("Failed to check if subscription %s exists: %v", subID, err)
	}
	if !exists {
		logger.Info().Msgf("Creating subscription %s", subID)
		if _, err := client.CreateSubscription(ctx, subID, cfg); err != nil {
			logger.Fatal().Msgf("Failed to create subscription %s: %v", subID, err)
		}
		return
	}

	existing, err := sub.Config(ctx)
	if err != nil {
		logger.Fatal().Msgf("Failed to get config for subscription %s: %v", subID, err)
	}
	if existing.PushConfig.Endpoint == cfg.PushConfig.Endpoint && existing.AckDeadline == cfg.AckDeadline {
		logger.Info().Msgf("Subscription %s is up to date", subID)
		return
	}

	logger.Info().Msgf("Updating subscription %s", subID)
	if _, err := sub.Update(ctx, pubsub.SubscriptionConfigToUpdate{
		PushConfig:  &cfg.PushConfig,
		AckDeadline: cfg.AckDeadline,
	}); err != nil {
		logger.Fatal().Msgf("Failed to update subscription %s: %v", subID, err)
	}
}
