package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	return r.db.WithContext(ctx).Create(user).Error
}

// CreateWithSubscription 在同一事务中创建用户和订阅，任一失败都回滚
func (r *UserRepository) CreateWithSubscription(ctx context.Context, user *model.User, sub *model.Subscription) error {
	user.Email = normalizeEmail(user.Email)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Subscription").Create(user).Error; err != nil {
			return err
		}
		sub.UserID = user.ID
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		user.Subscription = sub
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Preload("Subscription").Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail 邮箱不区分大小写
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Preload("Subscription").
		Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(ctx context.Context, githubID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Preload("Subscription").Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", normalizeEmail(email)).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// IncrementLoginAttempts 原子递增失败次数，返回递增后的值
func (r *UserRepository) IncrementLoginAttempts(ctx context.Context, id int64) (int, error) {
	var attempts []int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).Where("id = ?", id).
			UpdateColumn("login_attempts", gorm.Expr("login_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&model.User{}).Where("id = ?", id).Pluck("login_attempts", &attempts).Error
	})
	if err != nil {
		return 0, err
	}
	if len(attempts) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return attempts[0], nil
}

// LockUntil 设置锁定截止时间
func (r *UserRepository) LockUntil(ctx context.Context, id int64, until time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		UpdateColumn("locked_until", until.UTC()).Error
}

// ResetLoginState 清零失败次数并解除锁定
func (r *UserRepository) ResetLoginState(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"login_attempts": 0,
			"locked_until":   nil,
		}).Error
}

// RecordLogin 登录成功：清零失败次数、解除锁定并记录登录时间
func (r *UserRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"login_attempts": 0,
			"locked_until":   nil,
			"last_login_at":  at.UTC(),
		}).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
