package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/hashtag_server/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

var usageConflictColumns = []clause.Column{{Name: "user_id"}, {Name: "month_year"}}

// GetOrCreate 读取当月用量，不存在时创建全零记录
func (r *UsageRepository) GetOrCreate(ctx context.Context, userID int64, monthYear string) (*model.UsageStats, error) {
	db := r.db.WithContext(ctx)

	row := model.UsageStats{UserID: userID, MonthYear: monthYear}
	if err := db.Clauses(clause.OnConflict{
		Columns:   usageConflictColumns,
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return nil, err
	}

	var stats model.UsageStats
	if err := db.Where("user_id = ? AND month_year = ?", userID, monthYear).First(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// Increment 单条语句完成插入或自增：hashtags_generated += count，api_calls += 1
func (r *UsageRepository) Increment(ctx context.Context, userID int64, monthYear string, count int64) error {
	row := model.UsageStats{
		UserID:            userID,
		MonthYear:         monthYear,
		HashtagsGenerated: count,
		APICalls:          1,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: usageConflictColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"hashtags_generated": gorm.Expr("usage_stats.hashtags_generated + ?", count),
			"api_calls":          gorm.Expr("usage_stats.api_calls + ?", 1),
			"updated_at":         time.Now().UTC(),
		}),
	}).Create(&row).Error
}

// CountBefore monthYear 之前（不含）的记录数
func (r *UsageRepository) CountBefore(ctx context.Context, monthYear string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UsageStats{}).
		Where("month_year < ?", monthYear).
		Count(&count).Error
	return count, err
}

// DeleteBefore 删除 monthYear 之前（不含）的历史用量，返回删除行数
func (r *UsageRepository) DeleteBefore(ctx context.Context, monthYear string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("month_year < ?", monthYear).
		Delete(&model.UsageStats{})
	return res.RowsAffected, res.Error
}
