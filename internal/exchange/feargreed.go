package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"upbit-trading-bot/internal/market"
)

const fearGreedURL = "https://api.alternative.me/fng/"

// FearGreedService reads the crypto fear and greed index. Responses are
// cached for an hour since the index updates daily.
type FearGreedService struct {
	http *resty.Client

	cached   *market.FearGreed
	cachedAt time.Time
}

// NewFearGreedService creates the client
func NewFearGreedService() *FearGreedService {
	return &FearGreedService{
		http: resty.New().SetTimeout(10 * time.Second).SetRetryCount(2),
	}
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

// GetFearGreedIndex implements FearGreedClient
func (s *FearGreedService) GetFearGreedIndex(ctx context.Context) (*market.FearGreed, error) {
	if s.cached != nil && time.Since(s.cachedAt) < time.Hour {
		return s.cached, nil
	}

	var out fngResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		SetResult(&out).
		Get(fearGreedURL)
	if err != nil {
		return nil, fmt.Errorf("exchange: fear greed request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchange: fear greed status %d", resp.StatusCode())
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("exchange: empty fear greed response")
	}

	value, err := strconv.Atoi(out.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("exchange: parse fear greed value %q: %w", out.Data[0].Value, err)
	}

	s.cached = &market.FearGreed{Value: value, Classification: out.Data[0].Classification}
	s.cachedAt = time.Now()
	return s.cached, nil
}
