package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return gdb, mock
}

func TestSearchQueryShapeOnPostgres(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := repository.NewTradeRepository(gdb)

	mock.ExpectQuery(`SELECT \* FROM "trade_records" WHERE strategy = \$1 AND token_symbol = \$2 AND win_loss = \$3 ORDER BY timestamp DESC,trade_id DESC LIMIT \$4`).
		WithArgs("momentum", "SOL", "open", 5).
		WillReturnRows(sqlmock.NewRows([]string{"trade_id", "token_symbol", "win_loss"}).
			AddRow("b", "SOL", "open").
			AddRow("a", "SOL", "open"))

	got, err := repo.Search(context.Background(), repository.TradeFilter{
		Strategy: "momentum",
		Token:    "SOL",
		Status:   "open",
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].TradeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseWithLockTakesRowLockOnPostgres(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := repository.NewTradeRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "trade_records" WHERE trade_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"trade_id", "win_loss", "price_exit"}).
			AddRow("t-1", "win", "170"))
	mock.ExpectRollback()

	_, err := repo.CloseWithLock(context.Background(), "t-1", func(*models.TradeRecord) error {
		t.Fatal("closeFn must not run for a closed trade")
		return nil
	})
	assert.ErrorIs(t, err, repository.ErrTradeClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseWithLockWritesExitColumnsOnPostgres(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := repository.NewTradeRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "trade_records" WHERE trade_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"trade_id", "win_loss", "token_symbol"}).
			AddRow("t-1", "open", "SOL"))
	mock.ExpectExec(`UPDATE "trade_records" SET .*"realized_pnl"=\$\d+.*"unrealized_pnl"=\$\d+.*"win_loss"=\$\d+ WHERE .*trade_id = \$\d+ AND win_loss = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	closed, err := repo.CloseWithLock(context.Background(), "t-1", closeAs(models.WinLossWin, "170", "14.5", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, models.WinLossWin, closed.WinLoss)
	assert.Equal(t, "14.5", closed.RealizedPnL.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseWithLockLosesConditionalUpdateOnPostgres(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := repository.NewTradeRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "trade_records" WHERE trade_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"trade_id", "win_loss"}).AddRow("t-1", "open"))
	mock.ExpectExec(`UPDATE "trade_records" SET .* WHERE .*trade_id = \$\d+ AND win_loss = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.CloseWithLock(context.Background(), "t-1", closeAs(models.WinLossWin, "170", "14.5", t0.Add(time.Hour)))
	assert.ErrorIs(t, err, repository.ErrTradeClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
