package safe

import (
	"GreenChat/logger"
	"GreenChat/tools/errs"

	"go.uber.org/zap"
)

// SafeGo starts f on a new goroutine and logs a recovered panic instead of
// crashing the process.
func SafeGo(f func()) {
	go Run(f)
}

// Run calls f and converts a panic into a logged error. It returns the
// recovered panic as an error, or nil.
func Run(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			logger.Error("[SafeGo] panic recovered", zap.Any("panic", r), zap.Error(err))
		}
	}()
	f()
	return nil
}
