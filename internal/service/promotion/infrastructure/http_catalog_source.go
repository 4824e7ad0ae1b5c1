package infrastructure

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"upsell/internal/pkg/bootstrap"
	"upsell/internal/pkg/httpclient"
	"upsell/internal/pkg/logger"
	"upsell/internal/service/promotion/domain"
)

// ServiceDiscoverer 从注册中心选出一个健康实例。
type ServiceDiscoverer interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// HTTPCatalogSource 从管理后台的 /api/appMetafields 读取目录，只读。
type HTTPCatalogSource struct {
	client    *httpclient.Client
	sourceURL string
	service   string
	discovery ServiceDiscoverer
	ref       metafieldRef
}

// NewHTTPCatalogSource 创建远端目录源。discovery 非空且配置了 SourceService 时，
// 每次请求都通过注册中心替换 SourceURL 的 host。
func NewHTTPCatalogSource(client *httpclient.Client, cfg bootstrap.CatalogConfig, discovery ServiceDiscoverer) *HTTPCatalogSource {
	return &HTTPCatalogSource{
		client:    client,
		sourceURL: cfg.SourceURL,
		service:   cfg.SourceService,
		discovery: discovery,
		ref:       refFromConfig(cfg),
	}
}

type appMetafieldsResponse struct {
	AppMetafields struct {
		Edges []struct {
			Node struct {
				Namespace string `json:"namespace"`
				Key       string `json:"key"`
				Value     string `json:"value"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"appMetafields"`
}

// FindCatalog 请求远端并挑出目录对应的 metafield。
func (s *HTTPCatalogSource) FindCatalog(ctx context.Context, shopID string) (string, error) {
	target, err := s.resolve()
	if err != nil {
		return "", err
	}
	var resp appMetafieldsResponse
	err = s.client.GetJSON(ctx, target, url.Values{"shop": {shopID}}, &resp)
	if err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return "", domain.ErrCatalogNotFound
		}
		return "", errors.Wrapf(err, "fetch remote catalog for shop %s", shopID)
	}
	for _, e := range resp.AppMetafields.Edges {
		if e.Node.Namespace == s.ref.Namespace && e.Node.Key == s.ref.Key {
			return e.Node.Value, nil
		}
	}
	return "", domain.ErrCatalogNotFound
}

func (s *HTTPCatalogSource) resolve() (string, error) {
	u, err := url.Parse(s.sourceURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid catalog source url %q", s.sourceURL)
	}
	if s.discovery != nil && s.service != "" {
		ip, port, err := s.discovery.DiscoverServiceInstance(s.service)
		if err != nil {
			return "", err
		}
		u.Host = net.JoinHostPort(ip, strconv.Itoa(port))
		if u.Scheme == "" {
			u.Scheme = "http"
		}
	}
	return u.String(), nil
}

// FallbackCatalogRepository 读主仓储，找不到目录时再读远端；写入只落主仓储。
type FallbackCatalogRepository struct {
	domain.CatalogRepository
	fallback *HTTPCatalogSource
}

// NewFallbackCatalogRepository 组合主仓储和远端目录源。
func NewFallbackCatalogRepository(primary domain.CatalogRepository, fallback *HTTPCatalogSource) *FallbackCatalogRepository {
	return &FallbackCatalogRepository{CatalogRepository: primary, fallback: fallback}
}

func (r *FallbackCatalogRepository) FindCatalog(ctx context.Context, shopID string) (string, error) {
	blob, err := r.CatalogRepository.FindCatalog(ctx, shopID)
	if !errors.Is(err, domain.ErrCatalogNotFound) {
		return blob, err
	}
	logger.Ctx(ctx).Debug().Str("shop_id", shopID).Msg("catalog not in store, asking admin app")
	return r.fallback.FindCatalog(ctx, shopID)
}
