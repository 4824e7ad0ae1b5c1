package zookeeper

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot    = "/upsell/locks" // 所有分布式锁的根节点
	lockPrefix  = "lock-"
	lockTimeout = 30 * time.Second
)

// ErrLockTimeout 表示在超时前没有等到锁。
var ErrLockTimeout = errors.New("zookeeper: timeout waiting for lock")

// DistributedLock 是针对某个资源的一次加锁。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /upsell/locks/catalog-shop-1
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁对象并确保锁路径存在。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	if err := conn.ensurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 获取锁，拿不到时阻塞，直到 ctx 结束或超时。
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+lockPrefix, nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "zookeeper: create sequential node")
	}
	l.lockNode = nodePath
	myNode := strings.TrimPrefix(nodePath, l.path+"/")

	timer := time.NewTimer(lockTimeout)
	defer timer.Stop()

	for {
		// 2. 按序号排序所有子节点。protected 节点带 GUID 前缀，不能直接按名字排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "zookeeper: list children")
		}
		sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

		// 3. 自己是最小的节点就拿到了锁
		idx := -1
		for i, child := range children {
			if child == myNode {
				idx = i
				break
			}
		}
		if idx < 0 {
			l.lockNode = ""
			return errors.New("zookeeper: lock node vanished, session probably expired")
		}
		if idx == 0 {
			return nil
		}

		// 4. 否则监听前一个节点
		exists, _, events, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "zookeeper: watch previous node")
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-timer.C:
			l.abandon()
			return ErrLockTimeout
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("zookeeper: no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "zookeeper: delete lock node")
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}

// sequence 取出节点名末尾的 10 位序号。
func sequence(node string) string {
	if i := strings.LastIndex(node, lockPrefix); i >= 0 {
		return node[i+len(lockPrefix):]
	}
	return node
}
