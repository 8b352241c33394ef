package storage

import (
	"context"
	"dealchat/backend/internal/models"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the durable, append-only message store.
type Storage interface {
	// InsertMessage stores msg. Inserting an id that already exists is a no-op.
	InsertMessage(ctx context.Context, msg *models.ChatMessage) error
	// FindMessagesByRoom returns all messages of a room ordered by timestamp.
	FindMessagesByRoom(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	// FindLatestMessage returns nil when the room has no messages.
	FindLatestMessage(ctx context.Context, roomID string) (*models.ChatMessage, error)
	CountMessagesByRoom(ctx context.Context, roomID string) (int64, error)
	// DistinctRoomIDsForUser returns every room whose identifier includes userID.
	DistinctRoomIDsForUser(ctx context.Context, userID string) ([]string, error)
	Ping(ctx context.Context) error
}

// Service implements Storage on top of gorm.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Open connects to the configured database. Supported drivers are
// "postgres" and "sqlite".
func Open(driver, dsn string, silent bool) (*gorm.DB, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the message table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.ChatMessage{})
}

func (s *Service) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg).Error
}

func (s *Service) FindMessagesByRoom(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at asc").Order("id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Service) FindLatestMessage(ctx context.Context, roomID string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at desc").Order("id desc").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Service) CountMessagesByRoom(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("room_id = ?", roomID).
		Count(&n).Error
	return n, err
}

// DistinctRoomIDsForUser narrows candidates in SQL and then filters exactly,
// since "_" is itself a LIKE wildcard.
func (s *Service) DistinctRoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var candidates []string
	err := s.DB.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("sender = ? OR room_id LIKE ? OR room_id LIKE ?",
			userID, userID+models.RoomSeparator+"%", "%"+models.RoomSeparator+userID).
		Distinct().
		Pluck("room_id", &candidates).Error
	if err != nil {
		return nil, err
	}

	rooms := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if models.RoomIncludes(id, userID) {
			rooms = append(rooms, id)
		}
	}
	return rooms, nil
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Service) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
