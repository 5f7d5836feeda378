package bus

import (
	"context"
	"sync"
)

// FakeBus is an in-memory Producer/Consumer pair used by tests in this
// package and by the intake and httpapi packages, so they can
// exercise the capability interface without a live broker.
type FakeBus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	messages []Message
	closed   bool
}

func NewFakeBus() *FakeBus {
	f := &FakeBus{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *FakeBus) Send(ctx context.Context, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), value...)
	f.messages = append(f.messages, Message{Key: key, Value: cp})
	f.cond.Broadcast()
	return nil
}

func (f *FakeBus) Recv(ctx context.Context) (Message, bool, error) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.messages) == 0 && !f.closed {
		if ctx.Err() != nil {
			return Message{}, false, nil
		}
		f.cond.Wait()
	}
	if len(f.messages) == 0 {
		return Message{}, false, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	msg.commit = func(context.Context) error { return nil }
	return msg, true, nil
}

func (f *FakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}
