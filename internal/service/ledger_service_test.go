package service

import (
	"context"
	"testing"
	"time"

	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCreditAndBalance(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)

	err := ledger.Credit(ctx, nil, "alice", 350, model.TransactionTypeEarn, "消费返积分", "ORD1")
	require.NoError(t, err)

	balance, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(350), balance)

	// 流水追加且前后余额衔接
	transactions, total, err := ledger.ListTransactions(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, model.TransactionTypeEarn, transactions[0].Type)
	assert.Equal(t, int64(350), transactions[0].Amount)
	assert.Equal(t, int64(0), transactions[0].BalanceBefore)
	assert.Equal(t, int64(350), transactions[0].BalanceAfter)
	assert.Equal(t, "ORD1", transactions[0].OrderNo)

	// 月度累计同事务落库
	transRepo := repository.NewTransactionRepository(db)
	accrued, err := transRepo.GetAccrual(ctx, "alice", model.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(350), accrued)

	// 积分事件进发件箱
	var outboxCount int64
	db.Model(&model.OutboxMessage{}).Where("status = ?", model.OutboxStatusPending).Count(&outboxCount)
	assert.Equal(t, int64(1), outboxCount)
}

func TestLedgerAccrualAccumulates(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, testutil.NewConfig())
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)

	require.NoError(t, ledger.Credit(ctx, nil, "alice", 200, model.TransactionTypeEarn, "消费返积分", "ORD1"))
	require.NoError(t, ledger.Credit(ctx, nil, "alice", 150, model.TransactionTypeEarn, "消费返积分", "ORD2"))

	transRepo := repository.NewTransactionRepository(db)
	accrued, err := transRepo.GetAccrual(ctx, "alice", model.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(350), accrued)
}

func TestLedgerDebitInsufficient(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, testutil.NewConfig())
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 500, 0)

	err := ledger.Debit(ctx, nil, "alice", 1000, model.TransactionTypePay, "积分支付", "ORD1")
	assert.ErrorIs(t, err, repository.ErrInsufficientPoints)

	// 拒绝后余额不变，不产生流水
	balance, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	_, total, err := ledger.ListTransactions(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestLedgerDebit(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, testutil.NewConfig())
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 2000, 0)

	err := ledger.Debit(ctx, nil, "alice", 1000, model.TransactionTypeRoulette, "转盘抽奖", "ORD1")
	require.NoError(t, err)

	balance, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	transactions, _, err := ledger.ListTransactions(ctx, "alice", 1, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, int64(-1000), transactions[0].Amount)
	assert.Equal(t, int64(2000), transactions[0].BalanceBefore)
	assert.Equal(t, int64(1000), transactions[0].BalanceAfter)
}

func TestLedgerAdjustAndDeltaSum(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, testutil.NewConfig())
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)

	require.NoError(t, ledger.Adjust(ctx, "alice", 200, "活动补发"))
	require.NoError(t, ledger.Adjust(ctx, "alice", -150, "误发回收"))

	balance, err := ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	// 余额等于全部流水之和
	var deltaSum int64
	db.Model(&model.PointTransaction{}).Where("user_id = ?", "alice").
		Select("COALESCE(SUM(amount), 0)").Scan(&deltaSum)
	assert.Equal(t, balance, deltaSum)
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, testutil.NewConfig())
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 100, 0)

	assert.Error(t, ledger.Credit(ctx, nil, "alice", 0, model.TransactionTypeEarn, "x", ""))
	assert.Error(t, ledger.Credit(ctx, nil, "alice", -5, model.TransactionTypeEarn, "x", ""))
	assert.Error(t, ledger.Debit(ctx, nil, "alice", 0, model.TransactionTypePay, "x", ""))
	assert.Error(t, ledger.Adjust(ctx, "alice", 0, "x"))
}

func TestLedgerBalanceForUnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, testutil.NewConfig())

	balance, err := ledger.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}
