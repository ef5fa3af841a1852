// Package storage implements the moderation store and message audit log the
// chat core talks to: bans and complaints in PostgreSQL (via gorm) with a
// Redis cache in front of ban lookups. Either backend may be absent; methods
// then degrade to no-ops.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BanPrefix is the Redis key prefix for cached ban records.
const BanPrefix = "ban:"

// Storage is what the chat core, complaint service and admin surfaces need
// from persistence.
type Storage interface {
	IsBanned(ctx context.Context, fingerprint string) (bool, error)
	BanUser(ctx context.Context, fingerprint, reason string, duration time.Duration) error
	UnbanUser(ctx context.Context, fingerprint string) error
	GetBan(ctx context.Context, fingerprint string) (*models.Ban, error)

	PersistMessage(ctx context.Context, roomID string, msg models.Message) error
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID, reason string) error

	SaveComplaint(ctx context.Context, complaint *models.Complaint) error
	HasComplaint(ctx context.Context, reporter, target, roomID string) (bool, error)
	CountReportersSince(ctx context.Context, fingerprint string, since time.Time) (int64, error)
}

// Service is the gorm + Redis implementation of Storage.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

// AutoMigrate creates or updates the tables this service writes to.
func (s *Service) AutoMigrate() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.AutoMigrate(
		&models.ChatRoom{},
		&models.ChatHistory{},
		&models.Ban{},
		&models.Complaint{},
	)
}

// IsBanned checks Redis first and falls back to the bans table. A ban found
// in the database is written back to Redis with its remaining TTL.
func (s *Service) IsBanned(ctx context.Context, fingerprint string) (bool, error) {
	if s.Redis != nil {
		status, err := s.Redis.Get(ctx, BanPrefix+fingerprint).Result()
		switch {
		case err == nil:
			return status != "", nil
		case !errors.Is(err, redis.Nil) && s.DB == nil:
			return false, err
		}
	}
	if s.DB == nil {
		return false, nil
	}

	ban, err := s.GetBan(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	if ban == nil {
		return false, nil
	}
	s.cacheBan(ctx, ban)
	return true, nil
}

// GetBan returns the active ban for fingerprint, or nil.
func (s *Service) GetBan(ctx context.Context, fingerprint string) (*models.Ban, error) {
	if s.DB == nil {
		return nil, nil
	}
	var ban models.Ban
	err := s.DB.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&ban).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get ban: %w", err)
	}
	if !ban.Active(time.Now()) {
		return nil, nil
	}
	return &ban, nil
}

// BanUser bans fingerprint for duration (0 means permanent). Each ban raises
// the stored level by one.
func (s *Service) BanUser(ctx context.Context, fingerprint, reason string, duration time.Duration) error {
	now := time.Now()
	ban := models.Ban{Fingerprint: fingerprint, Reason: reason, Level: 1, CreatedAt: now}
	if duration > 0 {
		expires := now.Add(duration)
		ban.ExpiresAt = &expires
	}

	if s.DB != nil {
		var prev models.Ban
		if err := s.DB.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&prev).Error; err == nil {
			ban.Level = prev.Level + 1
		}
		err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&ban).Error
		if err != nil {
			return fmt.Errorf("storage: save ban: %w", err)
		}
	}
	s.cacheBan(ctx, &ban)
	return nil
}

// UnbanUser removes the ban from both backends.
func (s *Service) UnbanUser(ctx context.Context, fingerprint string) error {
	if s.Redis != nil {
		if err := s.Redis.Del(ctx, BanPrefix+fingerprint).Err(); err != nil {
			return fmt.Errorf("storage: unban cache: %w", err)
		}
	}
	if s.DB != nil {
		err := s.DB.WithContext(ctx).Where("fingerprint = ?", fingerprint).Delete(&models.Ban{}).Error
		if err != nil {
			return fmt.Errorf("storage: unban: %w", err)
		}
	}
	return nil
}

// ListBans returns every ban row, newest first.
func (s *Service) ListBans(ctx context.Context) ([]models.Ban, error) {
	if s.DB == nil {
		return nil, nil
	}
	var bans []models.Ban
	if err := s.DB.WithContext(ctx).Order("created_at desc").Find(&bans).Error; err != nil {
		return nil, fmt.Errorf("storage: list bans: %w", err)
	}
	return bans, nil
}

func (s *Service) cacheBan(ctx context.Context, ban *models.Ban) {
	if s.Redis == nil {
		return
	}
	var ttl time.Duration
	if ban.ExpiresAt != nil {
		ttl = time.Until(*ban.ExpiresAt)
		if ttl <= 0 {
			return
		}
	}
	reason := ban.Reason
	if reason == "" {
		reason = "banned"
	}
	s.Redis.Set(ctx, BanPrefix+ban.Fingerprint, reason, ttl)
}

// PersistMessage writes the audit copy of a room message.
func (s *Service) PersistMessage(ctx context.Context, roomID string, msg models.Message) error {
	if s.DB == nil {
		return nil
	}
	msg.RoomID = roomID
	history := models.NewChatHistory(msg)
	if err := s.DB.WithContext(ctx).Create(&history).Error; err != nil {
		return fmt.Errorf("storage: persist message %s: %w", msg.ID, err)
	}
	return nil
}

// SaveRoom stores the audit record of a new room.
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom marks the room inactive and records why it ended.
func (s *Service) CloseRoom(ctx context.Context, roomID, reason string) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"is_active":    false,
			"ended_at":     gorm.Expr("NOW()"),
			"close_reason": reason,
		}).Error
}

// SaveComplaint stores a report.
func (s *Service) SaveComplaint(ctx context.Context, complaint *models.Complaint) error {
	if complaint.Status == "" {
		complaint.Status = "new"
	}
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Create(complaint).Error
}

// HasComplaint reports whether reporter already reported target in roomID.
func (s *Service) HasComplaint(ctx context.Context, reporter, target, roomID string) (bool, error) {
	if s.DB == nil {
		return false, nil
	}
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Where("reporter_fingerprint = ? AND target_fingerprint = ? AND room_id = ?", reporter, target, roomID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("storage: find complaint: %w", err)
	}
	return n > 0, nil
}

// CountReportersSince counts the distinct fingerprints that reported
// fingerprint after since.
func (s *Service) CountReportersSince(ctx context.Context, fingerprint string, since time.Time) (int64, error) {
	if s.DB == nil {
		return 0, nil
	}
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Distinct("reporter_fingerprint").
		Where("target_fingerprint = ? AND created_at > ?", fingerprint, since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("storage: count reporters: %w", err)
	}
	return n, nil
}
