// Package redis 封装 go-redis，统一单机与集群两种部署。
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Nil 是 key 不存在时返回的错误。
var Nil = goredis.Nil

// Client 持有一个 UniversalClient。
type Client struct {
	client goredis.UniversalClient
}

// NewClient 按逗号分隔的地址创建客户端：一个地址为单机，多个地址为集群。
func NewClient(addrs string) (*Client, error) {
	list := splitAddrs(addrs)
	if len(list) == 0 {
		return nil, errors.New("redis: no address configured")
	}
	c := Wrap(goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        list,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, errors.Wrapf(err, "redis: ping %s", addrs)
	}
	return c, nil
}

// Wrap 包装一个已有的客户端。
func Wrap(client goredis.UniversalClient) *Client {
	return &Client{client: client}
}

// GetClient 返回底层客户端，用于 pipeline 等高级用法。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// Get 读取字符串值，key 不存在时返回 Nil。
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Set 写入字符串值。
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Del 删除 key。
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Close 关闭连接。
func (c *Client) Close() error {
	return c.client.Close()
}

func splitAddrs(addrs string) []string {
	var out []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
