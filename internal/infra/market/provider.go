package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/entity"
)

var ErrNoMarketData = errors.New("no market data for zipcode")

// missing marks a zipcode the API has no data for, so repeat lookups skip
// the network until the entry expires.
type missing struct{}

// HTTPProvider fetches market snapshots by postal code and caches them in
// memory.
type HTTPProvider struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetry   time.Duration

	cache *cache.Cache
}

func NewHTTPProvider(baseURL string, ttl time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		MaxRetry:   3 * time.Second,
		cache:      cache.New(ttl, ttl/2),
	}
}

func (p *HTTPProvider) Lookup(ctx context.Context, zipcode string) (*entity.MarketSnapshot, error) {
	key := zipKey(zipcode)
	if key == "" {
		return nil, ErrNoMarketData
	}

	if v, ok := p.cache.Get(key); ok {
		if snap, ok := v.(*entity.MarketSnapshot); ok {
			cp := *snap
			return &cp, nil
		}
		return nil, ErrNoMarketData
	}

	var snap *entity.MarketSnapshot
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = p.MaxRetry

	err := backoff.RetryNotify(func() error {
		var err error
		snap, err = p.fetch(ctx, key)
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Ctx(ctx).Debug().Err(err).Str("zipcode", key).Dur("retry_in", wait).Msg("market api retry")
	})

	if errors.Is(err, ErrNoMarketData) {
		p.cache.SetDefault(key, missing{})
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	p.cache.SetDefault(key, snap)
	cp := *snap
	return &cp, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, zipcode string) (*entity.MarketSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/markets/"+url.PathEscape(zipcode), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ErrNoMarketData)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("market api: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("market api: status %d: %s", resp.StatusCode, body))
	}

	var snap entity.MarketSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode market snapshot: %w", err))
	}
	if snap.Zipcode == "" {
		snap.Zipcode = zipcode
	}
	return &snap, nil
}

// zipKey reduces ZIP+4 to the five digit code the market data is keyed on.
func zipKey(zipcode string) string {
	zipcode = strings.TrimSpace(zipcode)
	if i := strings.IndexByte(zipcode, '-'); i >= 0 {
		zipcode = zipcode[:i]
	}
	return zipcode
}
