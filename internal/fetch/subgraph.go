package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/yourorg/metaswap-gateway/internal/contracts"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

// ErrNotIndexed is returned when the indexer has no entity for the requested id
var ErrNotIndexed = errors.New("market not indexed")

// SubgraphClient posts GraphQL queries to a subgraph endpoint.
type SubgraphClient struct {
	url    string
	apiKey string
	client *retryablehttp.Client
}

// NewSubgraphClient creates a GraphQL client for url
func NewSubgraphClient(url, apiKey string) *SubgraphClient {
	return &SubgraphClient{url: url, apiKey: apiKey, client: newRetryClient()}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// subgraphMeta is the indexing watermark every query selects
type subgraphMeta struct {
	Block struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"block"`
}

func (m subgraphMeta) indexedAt() time.Time {
	if m.Block.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(m.Block.Timestamp, 0).UTC()
}

// Query runs a GraphQL query and decodes the data object into out.
func (c *SubgraphClient) Query(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	if strings.TrimSpace(c.url) == "" {
		return errors.New("subgraph url not configured")
	}
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req.Request, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("subgraph error: %s", gr.Errors[0].Message)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return errors.New("subgraph returned no data")
	}
	return json.Unmarshal(gr.Data, out)
}

const overtimeMarketFields = `id homeTeam awayTeam tags maturityDate isOpen isPaused isResolved homeOdds awayOdds drawOdds`

const overtimeMarketQuery = `query Market($id: ID!) {
  sportMarket(id: $id) { ` + overtimeMarketFields + ` }
  _meta { block { timestamp } }
}`

const overtimeMarketsQuery = `query Markets($first: Int!) {
  sportMarkets(first: $first, where: {isOpen: true, isResolved: false}, orderBy: maturityDate) { ` + overtimeMarketFields + ` }
  _meta { block { timestamp } }
}`

type overtimeEntity struct {
	ID           string   `json:"id"`
	HomeTeam     string   `json:"homeTeam"`
	AwayTeam     string   `json:"awayTeam"`
	Tags         []string `json:"tags"`
	MaturityDate string   `json:"maturityDate"`
	IsOpen       bool     `json:"isOpen"`
	IsPaused     bool     `json:"isPaused"`
	IsResolved   bool     `json:"isResolved"`
	HomeOdds     string   `json:"homeOdds"`
	AwayOdds     string   `json:"awayOdds"`
	DrawOdds     string   `json:"drawOdds"`
}

func (e overtimeEntity) toMarket() (model.Market, error) {
	m := model.Market{
		ID:       strings.ToLower(e.ID),
		Category: types.CategorySports,
		Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway},
		Terms:    make(map[model.Outcome]decimal.Decimal, 3),
		IsOpen:   e.IsOpen && !e.IsPaused && !e.IsResolved,
	}
	if e.HomeTeam != "" || e.AwayTeam != "" {
		m.Label = e.HomeTeam + " vs " + e.AwayTeam
	}
	if len(e.Tags) > 0 {
		m.Sport = e.Tags[0]
	}
	if e.MaturityDate != "" {
		secs, err := strconv.ParseInt(e.MaturityDate, 10, 64)
		if err != nil {
			return model.Market{}, fmt.Errorf("invalid maturityDate %q: %w", e.MaturityDate, err)
		}
		m.Maturity = time.Unix(secs, 0).UTC()
	}

	home, err := parseScaled(e.HomeOdds, contracts.OvertimeDecimals)
	if err != nil {
		return model.Market{}, fmt.Errorf("invalid homeOdds: %w", err)
	}
	away, err := parseScaled(e.AwayOdds, contracts.OvertimeDecimals)
	if err != nil {
		return model.Market{}, fmt.Errorf("invalid awayOdds: %w", err)
	}
	m.Terms[model.OutcomeHome] = home
	m.Terms[model.OutcomeAway] = away
	if e.DrawOdds != "" {
		draw, err := parseScaled(e.DrawOdds, contracts.OvertimeDecimals)
		if err != nil {
			return model.Market{}, fmt.Errorf("invalid drawOdds: %w", err)
		}
		if draw.IsPositive() {
			m.Outcomes = append(m.Outcomes, model.OutcomeDraw)
			m.Terms[model.OutcomeDraw] = draw
		}
	}
	return m, nil
}

// OvertimeIndexer reads Overtime sport markets from the Thales subgraph.
type OvertimeIndexer struct {
	sg *SubgraphClient
}

// NewOvertimeIndexer wraps a subgraph client with Overtime queries
func NewOvertimeIndexer(sg *SubgraphClient) *OvertimeIndexer {
	return &OvertimeIndexer{sg: sg}
}

// Market returns the indexed market and the block time it was indexed at.
func (x *OvertimeIndexer) Market(ctx context.Context, id string) (model.Market, time.Time, error) {
	var data struct {
		SportMarket *overtimeEntity `json:"sportMarket"`
		Meta        subgraphMeta    `json:"_meta"`
	}
	if err := x.sg.Query(ctx, overtimeMarketQuery, map[string]interface{}{"id": strings.ToLower(id)}, &data); err != nil {
		return model.Market{}, time.Time{}, err
	}
	if data.SportMarket == nil {
		return model.Market{}, time.Time{}, fmt.Errorf("%s: %w", id, ErrNotIndexed)
	}
	m, err := data.SportMarket.toMarket()
	return m, data.Meta.indexedAt(), err
}

// Markets lists up to first open markets ordered by maturity.
func (x *OvertimeIndexer) Markets(ctx context.Context, first int) ([]model.Market, time.Time, error) {
	var data struct {
		SportMarkets []overtimeEntity `json:"sportMarkets"`
		Meta         subgraphMeta     `json:"_meta"`
	}
	if err := x.sg.Query(ctx, overtimeMarketsQuery, map[string]interface{}{"first": first}, &data); err != nil {
		return nil, time.Time{}, err
	}
	markets := make([]model.Market, 0, len(data.SportMarkets))
	for _, e := range data.SportMarkets {
		m, err := e.toMarket()
		if err != nil {
			// skip malformed entities, the rest of the page is still usable
			continue
		}
		markets = append(markets, m)
	}
	return markets, data.Meta.indexedAt(), nil
}

const azuroConditionFields = `conditionId status outcomes { outcomeId currentOdds } game { title startsAt sport { name } }`

const azuroConditionQuery = `query Condition($id: ID!) {
  condition(id: $id) { ` + azuroConditionFields + ` }
  _meta { block { timestamp } }
}`

const azuroConditionsQuery = `query Conditions($first: Int!) {
  conditions(first: $first, where: {status: Created}) { ` + azuroConditionFields + ` }
  _meta { block { timestamp } }
}`

// azuroCreated is the subgraph status of an open condition
const azuroCreated = "Created"

type azuroEntity struct {
	ConditionID string `json:"conditionId"`
	Status      string `json:"status"`
	Outcomes    []struct {
		OutcomeID   string `json:"outcomeId"`
		CurrentOdds string `json:"currentOdds"`
	} `json:"outcomes"`
	Game *struct {
		Title    string `json:"title"`
		StartsAt string `json:"startsAt"`
		Sport    struct {
			Name string `json:"name"`
		} `json:"sport"`
	} `json:"game"`
}

func (e azuroEntity) toMarket() (model.Market, error) {
	m := model.Market{
		ID:       e.ConditionID,
		Category: types.CategorySports,
		Outcomes: make([]model.Outcome, 0, len(e.Outcomes)),
		Terms:    make(map[model.Outcome]decimal.Decimal, len(e.Outcomes)),
		IsOpen:   e.Status == azuroCreated,
	}
	if e.Game != nil {
		m.Label = e.Game.Title
		m.Sport = strings.ToLower(e.Game.Sport.Name)
		if e.Game.StartsAt != "" {
			secs, err := strconv.ParseInt(e.Game.StartsAt, 10, 64)
			if err != nil {
				return model.Market{}, fmt.Errorf("invalid startsAt %q: %w", e.Game.StartsAt, err)
			}
			m.Maturity = time.Unix(secs, 0).UTC()
		}
	}
	for _, o := range e.Outcomes {
		odds, err := decimal.NewFromString(o.CurrentOdds)
		if err != nil {
			return model.Market{}, fmt.Errorf("invalid odds for outcome %s: %w", o.OutcomeID, err)
		}
		name := model.Outcome(o.OutcomeID)
		m.Outcomes = append(m.Outcomes, name)
		m.Terms[name] = odds
	}
	return m, nil
}

// AzuroIndexer reads Azuro conditions from the Azuro subgraph.
type AzuroIndexer struct {
	sg *SubgraphClient
}

// NewAzuroIndexer wraps a subgraph client with Azuro queries
func NewAzuroIndexer(sg *SubgraphClient) *AzuroIndexer {
	return &AzuroIndexer{sg: sg}
}

// Market returns the indexed condition and its indexing time.
func (x *AzuroIndexer) Market(ctx context.Context, id string) (model.Market, time.Time, error) {
	var data struct {
		Condition *azuroEntity `json:"condition"`
		Meta      subgraphMeta `json:"_meta"`
	}
	if err := x.sg.Query(ctx, azuroConditionQuery, map[string]interface{}{"id": id}, &data); err != nil {
		return model.Market{}, time.Time{}, err
	}
	if data.Condition == nil {
		return model.Market{}, time.Time{}, fmt.Errorf("%s: %w", id, ErrNotIndexed)
	}
	m, err := data.Condition.toMarket()
	return m, data.Meta.indexedAt(), err
}

// Markets lists up to first active conditions.
func (x *AzuroIndexer) Markets(ctx context.Context, first int) ([]model.Market, time.Time, error) {
	var data struct {
		Conditions []azuroEntity `json:"conditions"`
		Meta       subgraphMeta  `json:"_meta"`
	}
	if err := x.sg.Query(ctx, azuroConditionsQuery, map[string]interface{}{"first": first}, &data); err != nil {
		return nil, time.Time{}, err
	}
	markets := make([]model.Market, 0, len(data.Conditions))
	for _, e := range data.Conditions {
		if m, err := e.toMarket(); err == nil {
			markets = append(markets, m)
		}
	}
	return markets, data.Meta.indexedAt(), nil
}
