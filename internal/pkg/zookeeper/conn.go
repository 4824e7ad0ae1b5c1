// Package zookeeper 提供 ZooKeeper 连接以及基于临时顺序节点的分布式锁。
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"upsell/internal/pkg/logger"
)

// Conn 包装 zk.Conn，锁和其它组件共用同一个会话。
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群，servers 为逗号分隔的 host:port 列表。
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("zookeeper: no server configured")
	}
	c, _, err := zk.Connect(list, sessionTimeout, zk.WithLogger(zkLogger{logger.L()}))
	if err != nil {
		return nil, errors.Wrapf(err, "zookeeper: connect %s", servers)
	}
	return &Conn{Conn: c}, nil
}

// ensurePath 逐级创建持久节点，已存在的节点忽略。
func (c *Conn) ensurePath(path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		exists, _, err := c.Exists(cur)
		if err != nil {
			return errors.Wrapf(err, "zookeeper: exists %s", cur)
		}
		if exists {
			continue
		}
		if _, err := c.Create(cur, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "zookeeper: create %s", cur)
		}
	}
	return nil
}

type zkLogger struct {
	l *zerolog.Logger
}

func (z zkLogger) Printf(format string, args ...interface{}) {
	z.l.Debug().Str("component", "zookeeper").Msgf(format, args...)
}
