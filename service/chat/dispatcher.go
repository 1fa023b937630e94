package chat

import (
	"context"
	"sync"

	"GreenChat/tools/errs"
)

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	d.handlers[h.Type()] = h
	d.mu.Unlock()
}

func (d *Dispatcher) GetHandler(typ string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[typ]
}

func (d *Dispatcher) Dispatch(ctx context.Context, cc *ChatContext, f *Frame) error {
	h := d.GetHandler(f.Type)
	if h == nil {
		return errs.ErrUnsupportedFrame.WrapMsg("", "type", f.Type)
	}
	return h.Handle(ctx, cc, f)
}
