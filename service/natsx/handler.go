package natsx

import (
	"context"

	"GreenChat/tools/safe"

	"go.uber.org/zap"
)

// Message is one inbound relay message with the prefix already removed.
type Message struct {
	Topic  string
	Data   []byte
	Header map[string]string
}

type Handler func(ctx context.Context, msg Message) error

// Middleware wraps a Handler (logging, recovery ...).
type Middleware func(Handler) Handler

// Chain applies mws so that mws[0] runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover turns a panicking handler into an error.
func Recover() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (err error) {
			if perr := safe.Run(func() { err = next(ctx, msg) }); perr != nil {
				return perr
			}
			return err
		}
	}
}

// LogErrors logs handler failures and swallows them.
func LogErrors(log *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			if err := next(ctx, msg); err != nil {
				log.Warn("relay handler failed", zap.String("topic", msg.Topic), zap.Error(err))
			}
			return nil
		}
	}
}

func headerToMap(h map[string][]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
