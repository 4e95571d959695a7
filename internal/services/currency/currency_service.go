package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Service fetches USD-based conversion rates from the public currency API.
type Service struct {
	client  *resty.Client
	baseURL string
}

func NewService(timeout time.Duration) *Service {
	client := resty.New()
	client.SetTimeout(timeout)

	return &Service{
		client:  client,
		baseURL: "https://latest.currency-api.pages.dev",
	}
}

// SetBaseURL overrides the rates endpoint; used by tests.
func (s *Service) SetBaseURL(baseURL string) {
	s.baseURL = baseURL
}

// GetRates returns the conversion rate from USD for each requested code.
// Codes missing from the provider payload are silently skipped; the snapshot
// simply records no rate for them.
func (s *Service) GetRates(ctx context.Context, codes []string) (map[string]float64, error) {
	reqURL := s.baseURL + "/v1/currencies/usd.min.json"

	resp, err := s.client.R().SetContext(ctx).Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("get currency rates: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get currency rates: status %d", resp.StatusCode())
	}

	var payload struct {
		Date string             `json:"date"`
		USD  map[string]float64 `json:"usd"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("get currency rates: %w", err)
	}

	rates := make(map[string]float64, len(codes))
	for _, code := range codes {
		if rate, ok := payload.USD[strings.ToLower(code)]; ok {
			rates[strings.ToUpper(code)] = rate
		}
	}
	return rates, nil
}
