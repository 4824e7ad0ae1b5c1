package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"upsell/internal/pkg/zookeeper"
	"upsell/internal/service/promotion/domain"
)

// ZKLocker 用 ZooKeeper 分布式锁保护目录的读-改-写，多实例部署时使用。
type ZKLocker struct {
	conn *zookeeper.Conn
}

func NewZKLocker(conn *zookeeper.Conn) *ZKLocker {
	return &ZKLocker{conn: conn}
}

func (l *ZKLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, resource)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		if errors.Is(err, zookeeper.ErrLockTimeout) {
			return nil, errors.Wrap(domain.ErrLockTimeout, resource)
		}
		return nil, err
	}
	return lock.Unlock, nil
}

// LocalLocker 是单实例部署时的进程内锁。
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	l.mu.Lock()
	ch, ok := l.locks[resource]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[resource] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrap(domain.ErrLockTimeout, resource)
		}
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
