// Package lock предоставляет блокировки по ключу для сериализации изменений остатков товаров.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotAcquired возвращается, если блокировку не удалось получить за отведённые попытки.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker захватывает набор блокировок. Ключи сортируются и дедуплицируются,
// поэтому два вызова с пересекающимися наборами не приводят к взаимной блокировке.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// ProductKey возвращает ключ блокировки остатков товара.
func ProductKey(productID string) string {
	return "lock:stock:" + productID
}

func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

// MemoryLocker реализует Locker на мьютексах внутри процесса.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemoryLocker создаёт MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock захватывает все ключи по порядку, ожидая освобождения занятых.
func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]chan struct{}, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, k := range keys {
		ch := l.slot(k)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
