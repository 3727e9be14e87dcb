package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213

	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsConflict 并发冲突：乐观锁失败、数据库死锁、锁等待超时或序列化失败，
// 调用方应当按可重试处理
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOptimisticLock) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	return false
}
