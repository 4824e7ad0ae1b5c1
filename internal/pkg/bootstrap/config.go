package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是服务的全部配置。先读 YAML 文件，再用环境变量覆盖。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Catalog CatalogConfig `yaml:"catalog"`
}

type AppConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addrs string `yaml:"addrs"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      string `yaml:"brokers"`
		CatalogTopic string `yaml:"catalogTopic"`
	} `yaml:"kafka"`
	Zookeeper struct {
		Servers string `yaml:"servers"`
	} `yaml:"zookeeper"`
	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`
}

// CatalogConfig 决定促销目录从哪里读、缓存多久。
type CatalogConfig struct {
	// Namespace/Key 是 metafield 的命名空间和键
	Namespace string `yaml:"namespace"`
	Key       string `yaml:"key"`
	// SourceURL 是管理后台 /api/appMetafields 的地址，数据库中找不到目录时回落到这里
	SourceURL string `yaml:"sourceURL"`
	// SourceService 非空时通过 Nacos 发现管理后台，优先于 SourceURL 的 host
	SourceService string        `yaml:"sourceService"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
}

// Brokers 返回拆分后的 Kafka broker 列表。
func (c InfraConfig) Brokers() []string {
	return splitList(c.Kafka.Brokers)
}

// DefaultConfig 返回本地开发可用的默认配置，所有外部依赖默认关闭。
func DefaultConfig() Config {
	var c Config
	c.App.Port = 8087
	c.App.LogLevel = "info"
	c.Infra.Kafka.CatalogTopic = "promotion-catalog-changed"
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	c.Catalog.Namespace = "storage"
	c.Catalog.Key = "promotions"
	c.Catalog.CacheTTL = 5 * time.Minute
	return c
}

// Load 读取 path 指向的 YAML 文件并应用环境变量覆盖。文件不存在时只用默认值。
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config) error {
	if v := getEnv("HTTP_PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid HTTP_PORT %q", v)
		}
		c.App.Port = port
	}
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.MySQL.DSN = getEnv("MYSQL_DSN", c.Infra.MySQL.DSN)
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", c.Infra.Redis.Addrs)
	c.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Kafka.CatalogTopic = getEnv("KAFKA_CATALOG_TOPIC", c.Infra.Kafka.CatalogTopic)
	c.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", c.Infra.Zookeeper.Servers)
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Catalog.SourceURL = getEnv("CATALOG_SOURCE_URL", c.Catalog.SourceURL)
	c.Catalog.SourceService = getEnv("CATALOG_SOURCE_SERVICE", c.Catalog.SourceService)
	if v := getEnv("CATALOG_CACHE_TTL", ""); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid CATALOG_CACHE_TTL %q", v)
		}
		c.Catalog.CacheTTL = ttl
	}
	return nil
}

var (
	configMu      sync.RWMutex
	currentConfig = DefaultConfig()
)

// Init 从 CONFIG_PATH (默认 config.yaml) 加载配置，作为进程级当前配置。
func Init() error {
	cfg, err := Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		return err
	}
	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
	return nil
}

// GetCurrentConfig 返回当前配置的副本。
func GetCurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return currentConfig
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
