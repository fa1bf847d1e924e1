package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chai-assistant/internal/model"
)

// TurnRepository stores turns in a shared SQL server through gorm.
type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Migrate() error {
	if err := r.db.AutoMigrate(&model.Turn{}); err != nil {
		return fmt.Errorf("auto migrate turns failed: %w", err)
	}
	return nil
}

func (r *TurnRepository) Append(ctx context.Context, turn model.Turn) error {
	if err := r.db.WithContext(ctx).Create(&turn).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

func (r *TurnRepository) List(ctx context.Context, threadID string) ([]model.Turn, error) {
	var turns []model.Turn
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp ASC").
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	return turns, nil
}

func (r *TurnRepository) Clear(ctx context.Context, threadID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&model.Turn{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete turns failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *TurnRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db failed: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
