package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects through pgx and migrates the schema.
func OpenPostgres(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db, log)
}

func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&Room{}, &Message{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db, log: log}, nil
}

func (s *GormStore) CreateRoom(ctx context.Context, r Room) error {
	err := s.db.WithContext(ctx).Create(&r).Error
	if isUniqueViolation(err) {
		return ErrRoomExists
	}
	if err != nil {
		return fmt.Errorf("create room %s: %w", r.ID, err)
	}
	return nil
}

func (s *GormStore) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := s.db.WithContext(ctx).Order("id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *GormStore) DeleteRoom(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("delete messages %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&Room{})
		if res.Error != nil {
			return fmt.Errorf("delete room %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
}

func (s *GormStore) SaveMessage(ctx context.Context, m Message) error {
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	return nil
}

func (s *GormStore) History(ctx context.Context, roomID string, limit int) ([]Message, error) {
	var msgs []Message
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("seq desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("history %s: %w", roomID, err)
	}
	// Newest first from the query; callers want oldest first
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.log.Info("closing database")
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
