package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remibonds525-star/loyalty-engine/auth"
	"github.com/remibonds525-star/loyalty-engine/config"
	"github.com/remibonds525-star/loyalty-engine/db/redis"
	"github.com/remibonds525-star/loyalty-engine/events/kafka"
	"github.com/remibonds525-star/loyalty-engine/logging"
	"github.com/remibonds525-star/loyalty-engine/pkg/jackpot"
	"github.com/remibonds525-star/loyalty-engine/provider"
	"github.com/remibonds525-star/loyalty-engine/server"
	"github.com/remibonds525-star/loyalty-engine/wire"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loyaltyengine",
		Short: "Rewards ledger and chance games service",
		Long: `Rewards service backing the in-app coin wallet and its chance games:
the saw spin, the job-site board and the daily bonus wheel.

Example:
  loyaltyengine serve --config config/config.yaml
  loyaltyengine token --user u-123 --tier 1`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("config", "c", "config/config.yaml", "Path to config file")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a development JWT",
		Long:  "Generates a signed JWT for local testing against the API.",
		RunE:  runToken,
	}
	tokenCmd.Flags().StringP("config", "c", "config/config.yaml", "Path to config file")
	tokenCmd.Flags().String("user", "", "User ID (required)")
	tokenCmd.Flags().String("username", "", "Username claim")
	tokenCmd.Flags().Int("tier", 0, "Loyalty tier claim")
	tokenCmd.Flags().Duration("expires", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Logging)

	var redisClient *redis.Client
	if cfg.Storage.Backend == "redis" {
		redisClient, err = redis.New(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
	}

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err = kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
	}

	// Backend stores and domain services
	ctx := cmd.Context()
	ledgerStore, err := wire.ProvideLedgerStore(cfg, redisClient)
	if err != nil {
		return err
	}
	quotaStore, err := wire.ProvideQuotaStore(cfg, redisClient)
	if err != nil {
		return err
	}
	jackpotStore, err := wire.ProvideJackpotStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}

	ledgerService := wire.ProvideLedgerService(ledgerStore, logger)
	tracker, err := wire.ProvideQuotaTracker(quotaStore, cfg, logger)
	if err != nil {
		return err
	}
	pool := wire.ProvideJackpotService(jackpotStore, logger)

	// Game engines share one random source
	src := wire.ProvideRandomSource()
	sawEngine := wire.ProvideSawEngine(cfg, pool, src)
	minesEngine := wire.ProvideMinesEngine(cfg, src)
	dailyEngine := wire.ProvideDailyEngine(cfg, src)
	boards := wire.ProvideBoardRegistry()

	audit := provider.NewAuditProvider(cfg, kafkaProducer, logger)

	playService := server.NewPlayService(server.PlayServiceOptions{
		Ledger: ledgerService,
		Quota:  tracker,
		Pool:   pool,
		Saw:    sawEngine,
		Mines:  minesEngine,
		Daily:  dailyEngine,
		Boards: boards,
		Audit:  audit,
		Games:  cfg.Games,
		Logger: logger,
	})

	app := server.New(server.Options{
		Config:  cfg,
		Logger:  logger,
		Play:    playService,
		Jackpot: pool,
	})

	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterAPIRoutes()

	// Feed pool updates from other nodes into the local stream
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		topic := "loyalty.pool-updates"
		if t, ok := cfg.Kafka.Topics["pool_updates"]; ok {
			topic = t
		}
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         topic,
			ConsumerGroup: cfg.Kafka.ConsumerGroup + "-pool",
			Logger:        logger,
		})
		if err := consumer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start pool-update consumer")
		}
		sub := consumer.Subscribe()

		feed := make(chan jackpot.Update, 256)
		app.AttachJackpotUpdateFeed(feed)
		go func() {
			for evt := range sub.Channel {
				feed <- jackpot.Update{
					Value:     evt.Value,
					Timestamp: evt.UpdatedAt,
				}
			}
			close(feed)
		}()

		app.OnShutdown(func() {
			consumer.Unsubscribe(sub)
			_ = consumer.Stop()
		})
	}

	app.OnShutdown(func() {
		boards.Stop()
		if kafkaProducer != nil {
			_ = kafkaProducer.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
	})

	logger.Info().Int("port", cfg.Server.Port).Msg("Starting rewards service")
	return app.Run()
}

func runToken(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	userID, _ := cmd.Flags().GetString("user")
	username, _ := cmd.Flags().GetString("username")
	tier, _ := cmd.Flags().GetInt("tier")
	expires, _ := cmd.Flags().GetDuration("expires")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if username == "" {
		username = userID
	}

	token, err := auth.GenerateToken(cfg.JWT.Secret, userID, username, tier, expires)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}
