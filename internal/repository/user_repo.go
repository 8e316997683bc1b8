package repository

import (
	"context"
	"errors"

	"snackbar/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInsufficientPoints = errors.New("积分不足")
	ErrInsufficientWallet = errors.New("钱包余额不足")
	ErrOptimisticLock     = errors.New("乐观锁冲突，请重试")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreate 首次认证即建档，往后只做读取
func (r *UserRepository) GetOrCreate(ctx context.Context, userID, email string) (*model.User, error) {
	user, err := r.GetByUserID(ctx, nil, userID)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	newUser := &model.User{
		UserID: userID,
		Email:  email,
		Role:   model.RoleUser,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newUser).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, nil, userID)
}

// DebitPoints 条件更新扣积分
//
// WHERE 同时带余额守卫和版本号：余额是在本条 UPDATE 里读的，
// 不是调用方事务外缓存的旧值，并发花费同一账户会正确串行化。
// RowsAffected=0 时回查区分"积分不足"和"版本冲突"。
func (r *UserRepository) DebitPoints(ctx context.Context, tx *gorm.DB, userID string, amount int64, version int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND points >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"points":  gorm.Expr("points - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 在同一事务里回查，区分余额不足和版本冲突
		user, err := r.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.Points < amount {
			return ErrInsufficientPoints
		}
		return ErrOptimisticLock
	}

	return nil
}

// CreditPoints 原子加积分
func (r *UserRepository) CreditPoints(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"points":  gorm.Expr("points + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// DebitWallet 扣模拟钱包余额，守卫方式同积分
func (r *UserRepository) DebitWallet(ctx context.Context, tx *gorm.DB, userID string, amountCents int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND wallet_cents >= ?", userID, amountCents).
		Update("wallet_cents", gorm.Expr("wallet_cents - ?", amountCents))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		user, err := r.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.WalletCents < amountCents {
			return ErrInsufficientWallet
		}
		return ErrOptimisticLock
	}

	return nil
}

// CreditWallet 充值模拟钱包（测试/演示用入口）
func (r *UserRepository) CreditWallet(ctx context.Context, tx *gorm.DB, userID string, amountCents int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Update("wallet_cents", gorm.Expr("wallet_cents + ?", amountCents))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetBadLuckCount 霉运计数直接写目标值
// 只在转盘事务内、持有该用户分布式锁时调用，不会互相覆盖
func (r *UserRepository) SetBadLuckCount(ctx context.Context, tx *gorm.DB, userID string, count int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Update("bad_luck_count", count)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
