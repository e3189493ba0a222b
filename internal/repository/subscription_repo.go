package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert 写入用户的订阅：已有记录时更新套餐、状态和周期，否则新建。
// sub.LastEventSeq > 0 时只在不小于已应用序号时生效，旧事件返回 false。
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := r.update(tx, sub)
		if err != nil || ok {
			applied = ok
			return err
		}

		var count int64
		if err := tx.Model(&model.Subscription{}).Where("user_id = ?", sub.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			// 有记录但序号更大，事件过期
			return nil
		}

		if err := tx.Create(sub).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			// 并发创建，退回到更新
			ok, err = r.update(tx, sub)
			applied = ok
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *SubscriptionRepository) update(tx *gorm.DB, sub *model.Subscription) (bool, error) {
	fields := map[string]interface{}{
		"plan_id":              sub.PlanID,
		"status":               sub.Status,
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"updated_at":           time.Now().UTC(),
	}
	q := tx.Model(&model.Subscription{}).Where("user_id = ?", sub.UserID)
	if sub.LastEventSeq > 0 {
		fields["last_event_seq"] = sub.LastEventSeq
		q = q.Where("last_event_seq <= ?", sub.LastEventSeq)
	}
	res := q.UpdateColumns(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountEnded 周期已结束、待标记为过期的已取消订阅数
func (r *SubscriptionRepository) CountEnded(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND current_period_end <= ?", model.SubscriptionCancelled, now.UTC()).
		Count(&count).Error
	return count, err
}

// ExpireEnded 将周期已结束的已取消订阅标记为过期，返回影响行数
func (r *SubscriptionRepository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND current_period_end <= ?", model.SubscriptionCancelled, now.UTC()).
		UpdateColumns(map[string]interface{}{
			"status":     model.SubscriptionExpired,
			"updated_at": now.UTC(),
		})
	return res.RowsAffected, res.Error
}
