package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/types"
	"golang.org/x/time/rate"
)

// ErrMarketUnknown is returned when the partner API answers 404 for a market
var ErrMarketUnknown = errors.New("market unknown to partner")

// PartnerClient queries the Overtime partner REST API. Requests are rate
// limited locally so a degraded cascade never floods the paid endpoint.
type PartnerClient struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

// NewPartnerClient creates a client for baseURL allowing rps requests per second
func NewPartnerClient(baseURL, apiKey string, rps float64) *PartnerClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &PartnerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newRetryClient(),
		limiter: rate.NewLimiter(limit, burst),
	}
}

type partnerMarket struct {
	Address      string              `json:"address"`
	Sport        string              `json:"sport"`
	HomeTeam     string              `json:"homeTeam"`
	AwayTeam     string              `json:"awayTeam"`
	HomeOdds     decimal.Decimal     `json:"homeOdds"`
	AwayOdds     decimal.Decimal     `json:"awayOdds"`
	DrawOdds     decimal.NullDecimal `json:"drawOdds"`
	MaturityDate string              `json:"maturityDate"`
	IsOpen       bool                `json:"isOpen"`
}

func (p partnerMarket) toMarket() (model.Market, error) {
	m := model.Market{
		ID:       strings.ToLower(p.Address),
		Category: types.CategorySports,
		Sport:    strings.ToLower(p.Sport),
		Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway},
		Terms: map[model.Outcome]decimal.Decimal{
			model.OutcomeHome: p.HomeOdds,
			model.OutcomeAway: p.AwayOdds,
		},
		IsOpen: p.IsOpen,
	}
	if p.HomeTeam != "" || p.AwayTeam != "" {
		m.Label = p.HomeTeam + " vs " + p.AwayTeam
	}
	if p.DrawOdds.Valid && p.DrawOdds.Decimal.IsPositive() {
		m.Outcomes = append(m.Outcomes, model.OutcomeDraw)
		m.Terms[model.OutcomeDraw] = p.DrawOdds.Decimal
	}
	if p.MaturityDate != "" {
		t, err := time.Parse(time.RFC3339, p.MaturityDate)
		if err != nil {
			return model.Market{}, fmt.Errorf("invalid maturityDate %q: %w", p.MaturityDate, err)
		}
		m.Maturity = t.UTC()
	}
	return m, nil
}

func (c *PartnerClient) get(ctx context.Context, path string, out interface{}) error {
	if c.baseURL == "" {
		return errors.New("partner api url not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	setAuth(req.Request, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrMarketUnknown
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Market fetches a single market by contract address.
func (c *PartnerClient) Market(ctx context.Context, id string) (model.Market, error) {
	var pm partnerMarket
	if err := c.get(ctx, "/markets/"+url.PathEscape(strings.ToLower(id)), &pm); err != nil {
		return model.Market{}, err
	}
	if pm.Address == "" {
		return model.Market{}, errors.New("partner response missing address")
	}
	if !strings.EqualFold(pm.Address, id) {
		return model.Market{}, fmt.Errorf("partner returned market %s for %s", pm.Address, id)
	}
	return pm.toMarket()
}

// Markets lists active markets. The API returns either a bare array or an
// object with a markets field.
func (c *PartnerClient) Markets(ctx context.Context) ([]model.Market, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/markets", &raw); err != nil {
		return nil, err
	}

	var list []partnerMarket
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Markets []partnerMarket `json:"markets"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode markets: %w", err)
		}
		list = wrapped.Markets
	}

	markets := make([]model.Market, 0, len(list))
	for _, pm := range list {
		if m, err := pm.toMarket(); err == nil && m.ID != "" {
			markets = append(markets, m)
		}
	}
	return markets, nil
}
