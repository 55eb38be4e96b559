package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/changefeed"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/channel"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/db"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/handler"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/hub"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/presence"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/service"
)

type Container struct {
	ConversationHandler handler.ConversationHandler
	Hub                 *hub.Hub
	Config              Config
	Logger              *zap.Logger

	// private - for cleanup
	mongoDatabase *mongo.Database
	feed          *changefeed.Feed[model.Message]
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(config.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	con, err := db.OpenConnection(config.Mongo.URI, config.Mongo.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	messagesRepo := db.NewRepository[model.Message](con, config.Mongo.MessagesCollection)
	profilesRepo := db.NewRepository[model.Profile](con, config.Mongo.ProfilesCollection)

	messageRepo := repo.NewMessageRepository(messagesRepo, logger)
	profileRepo := repo.NewProfileRepository(profilesRepo, logger)

	feed, err := changefeed.Open[model.Message](context.Background(), messagesRepo.Collection(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	broker := channel.NewBroker(logger)
	presenceService := presence.NewService(broker, profileRepo, logger)

	conversationService := service.NewConversationService(messageRepo, profileRepo, presenceService, logger)
	conversationHandler := handler.NewConversationHandler(conversationService)

	realtimeHub := hub.NewHub(hub.Deps{
		Broker:         broker,
		Presence:       presenceService,
		Messages:       messageRepo,
		Profiles:       profileRepo,
		Feed:           feed,
		Logger:         logger,
		AllowedOrigins: config.Server.AllowedOrigins,
	})

	return &Container{
		ConversationHandler: conversationHandler,
		Hub:                 realtimeHub,
		Config:              *config,
		Logger:              logger,
		mongoDatabase:       con,
		feed:                feed,
	}, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	return cfg.Build()
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections and their
	// presence sessions, which still need mongo for last_seen writes)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.feed != nil {
		c.feed.Close()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoDatabase != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoDatabase.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
