// Package botstore implements the backing-store collaborators consumed by the
// bot-configuration cache and the plan enforcer, on top of the platform's
// relational database.
package botstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nexabot/guardrail/internal/botcache"
	"github.com/nexabot/guardrail/pkg/logger"
)

// Bot mirrors the platform's bots table. Only the columns the governance
// layer reads are mapped.
type Bot struct {
	ID              string  `gorm:"column:id;primaryKey"`
	Name            string  `gorm:"column:name"`
	Model           string  `gorm:"column:model"`
	SystemPrompt    string  `gorm:"column:system_prompt"`
	Temperature     float64 `gorm:"column:temperature"`
	MaxTokens       int     `gorm:"column:max_tokens"`
	Status          string  `gorm:"column:status"`
	CreatedBy       string  `gorm:"column:created_by"`
	FallbackMessage string  `gorm:"column:fallback_message"`
	WelcomeMessage  string  `gorm:"column:welcome_message"`
}

func (Bot) TableName() string { return "bots" }

// User carries the subscription plan.
type User struct {
	ID       string `gorm:"column:id;primaryKey"`
	PlanType string `gorm:"column:plan_type"`
}

func (User) TableName() string { return "users" }

// ChatSession is counted toward the monthly message quota.
type ChatSession struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// Document is counted toward the document and storage quotas.
type Document struct {
	ID     string `gorm:"column:id;primaryKey"`
	UserID string `gorm:"column:user_id"`
	Status string `gorm:"column:status"`
	Size   int64  `gorm:"column:size"`
}

func (Document) TableName() string { return "documents" }

// Store queries bot configuration and usage aggregates. It implements
// botcache.BotStore and plan.UsageSource.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log.WithComponent("botstore")}
}

// Open connects to Postgres with the given DSN.
func Open(dsn string, log logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return New(db, log), nil
}

// FindBot loads an active bot by id, additionally filtered by owner when
// ownerID is non-empty. A missing bot is (nil, nil).
func (s *Store) FindBot(ctx context.Context, botID, ownerID string) (*botcache.BotConfig, error) {
	query := s.db.WithContext(ctx).Where("id = ? AND status = ?", botID, "active")
	if ownerID != "" {
		query = query.Where("created_by = ?", ownerID)
	}

	var bot Bot
	if err := query.First(&bot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &botcache.BotConfig{
		ID:              bot.ID,
		Name:            bot.Name,
		Model:           bot.Model,
		SystemPrompt:    bot.SystemPrompt,
		Temperature:     bot.Temperature,
		MaxTokens:       bot.MaxTokens,
		Status:          bot.Status,
		OwnerID:         bot.CreatedBy,
		FallbackMessage: bot.FallbackMessage,
		WelcomeMessage:  bot.WelcomeMessage,
	}, nil
}

// ListBotIDs returns the ids of all bots owned by ownerID.
func (s *Store) ListBotIDs(ctx context.Context, ownerID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Bot{}).
		Where("created_by = ?", ownerID).
		Pluck("id", &ids).Error
	return ids, err
}

// PlanName returns the user's subscription plan, defaulting to free when the
// column is empty.
func (s *Store) PlanName(ctx context.Context, userID string) (string, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return "", err
	}
	if user.PlanType == "" {
		return "free", nil
	}
	return user.PlanType, nil
}

// ActiveBotCount returns the number of active bots owned by the user.
func (s *Store) ActiveBotCount(ctx context.Context, userID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Bot{}).
		Where("created_by = ? AND status = ?", userID, "active").
		Count(&count).Error
	return int(count), err
}

// MonthlyMessageCount returns the user's chat sessions since the start of the
// current calendar month.
func (s *Store) MonthlyMessageCount(ctx context.Context, userID string) (int, error) {
	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var count int64
	err := s.db.WithContext(ctx).Model(&ChatSession{}).
		Where("user_id = ? AND created_at >= ?", userID, startOfMonth).
		Count(&count).Error
	return int(count), err
}

// StorageBytes sums the sizes of the user's active documents.
func (s *Store) StorageBytes(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&Document{}).
		Where("user_id = ? AND status = ?", userID, "active").
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	return total, err
}

// DocumentCount returns the user's active document count.
func (s *Store) DocumentCount(ctx context.Context, userID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Document{}).
		Where("user_id = ? AND status = ?", userID, "active").
		Count(&count).Error
	return int(count), err
}
