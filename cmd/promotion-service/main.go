// cmd/promotion-service/main.go
package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"upsell/internal/pkg/bootstrap"
	"upsell/internal/pkg/httpclient"
	"upsell/internal/pkg/logger"
	"upsell/internal/pkg/metrics"
	"upsell/internal/pkg/mq"
	"upsell/internal/pkg/redis"
	"upsell/internal/pkg/zookeeper"
	"upsell/internal/service/promotion/application"
	"upsell/internal/service/promotion/domain"
	"upsell/internal/service/promotion/infrastructure"
	"upsell/internal/service/promotion/infrastructure/rule"
	"upsell/internal/service/promotion/interfaces"
)

const (
	serviceName      = "promotion-service"
	zkSessionTimeout = 10 * time.Second
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	if err := bootstrap.Init(); err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, cfg.App.LogLevel)

	err := bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             cfg.App.Port,
		RegisterHandlers: registerHandlers,
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("service exited with error")
	}
}

func registerHandlers(appCtx bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)
	m := metrics.New(prometheus.DefaultRegisterer)

	// 1. 目录存储：MySQL 未配置时退回进程内存储
	var repo domain.CatalogRepository
	if cfg.Infra.MySQL.DSN != "" {
		db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL.DSN)
		if err != nil {
			return err
		}
		gormRepo := infrastructure.NewGormCatalogRepository(db, cfg.Catalog)
		if err := gormRepo.AutoMigrate(); err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		repo = gormRepo
	} else {
		logger.L().Warn().Msg("⚠️ MYSQL_DSN not set, promotion catalogs are kept in memory")
		repo = infrastructure.NewMemoryCatalogRepository()
	}

	// 2. 本地没有目录时去管理后台读
	if cfg.Catalog.SourceURL != "" {
		var discovery infrastructure.ServiceDiscoverer
		if appCtx.Nacos != nil {
			discovery = appCtx.Nacos
		}
		source := infrastructure.NewHTTPCatalogSource(httpclient.NewClient(tracer), cfg.Catalog, discovery)
		repo = infrastructure.NewFallbackCatalogRepository(repo, source)
	}

	// 3. Redis 缓存 + Kafka 失效通知
	var cached *infrastructure.CachedCatalogRepository
	if cfg.Infra.Redis.Addrs != "" {
		rdb, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error { return rdb.Close() })
		cached = infrastructure.NewCachedCatalogRepository(repo, rdb, cfg.Catalog, m)
		repo = cached
	}

	opts := []application.Option{application.WithMetrics(m)}
	if brokers := cfg.Infra.Brokers(); len(brokers) > 0 {
		writer := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.CatalogTopic)
		appCtx.OnShutdown(func(context.Context) error { return writer.Close() })
		opts = append(opts, application.WithPublisher(infrastructure.NewKafkaCatalogPublisher(writer, m)))

		if cached != nil {
			// 每个实例一个消费组，保证每个实例都收到失效通知
			reader := mq.NewKafkaReader(brokers, cfg.Infra.Kafka.CatalogTopic, consumerGroup())
			consumer := interfaces.NewCatalogEventConsumer(reader, cached, m)
			appCtx.Go(consumer.Run)
			appCtx.OnShutdown(consumer.Close)
		}
	}

	// 4. 目录写锁
	var locker domain.Locker
	if cfg.Infra.Zookeeper.Servers != "" {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, zkSessionTimeout)
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error {
			conn.Close()
			return nil
		})
		locker = infrastructure.NewZKLocker(conn)
	} else {
		locker = infrastructure.NewLocalLocker()
	}

	// 5. 促销附加条件
	rules, err := rule.NewCELEngine()
	if err != nil {
		return err
	}
	opts = append(opts, application.WithRuleEngine(rules))

	svc := application.NewPromotionService(repo, locker, tracer, opts...)
	interfaces.NewPromotionHandler(svc).RegisterRoutes(appCtx.Mux)
	return nil
}

func consumerGroup() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return serviceName + "-" + host
}
