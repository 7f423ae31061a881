package repository

import (
	"database/sql/driver"
	"errors"

	"github.com/murilobezs/empowerup-sub002/pkg/logger"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// withRetry 在仓储边界对瞬时存储故障（连接断开）重试一次
// 重试后仍失败则原样向上传播，上层不再吞错
func withRetry(op string, fn func() error) error {
	err := fn()
	if err == nil || !isTransient(err) {
		return err
	}

	logger.Warn("存储瞬时故障，重试一次",
		zap.String("operation", op),
		zap.Error(err),
	)
	return fn()
}

// isTransient 判断是否连接级瞬时错误
func isTransient(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
}
