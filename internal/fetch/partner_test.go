package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

func TestPartnerClientMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/0x1a2b3c4d5e6f7890abcdef1234567890abcdef12", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"address":"0x1a2b3c4d5e6f7890abcdef1234567890abcdef12","sport":"Football",
			"homeTeam":"Real Madrid","awayTeam":"Barcelona","homeOdds":2.15,"awayOdds":3.40,"drawOdds":3.20,
			"maturityDate":"2026-12-01T18:00:00Z","isOpen":true}`))
	}))
	defer srv.Close()

	c := NewPartnerClient(srv.URL+"/", "k", 0)
	m, err := c.Market(context.Background(), "0x1A2B3C4D5E6F7890ABCDEF1234567890ABCDEF12")
	require.NoError(t, err)
	assert.Equal(t, "football", m.Sport)
	assert.True(t, m.IsOpen)
	assert.Len(t, m.Outcomes, 3)
	assert.True(t, m.Terms[model.OutcomeDraw].Equal(decimal.RequireFromString("3.2")))
	assert.Equal(t, time.Date(2026, 12, 1, 18, 0, 0, 0, time.UTC), m.Maturity)
}

func TestPartnerClientNullDraw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"0x2b","homeOdds":"1.85","awayOdds":"2.10","drawOdds":null,"isOpen":true}`))
	}))
	defer srv.Close()

	m, err := NewPartnerClient(srv.URL, "", 10).Market(context.Background(), "0x2b")
	require.NoError(t, err)
	assert.Equal(t, []model.Outcome{model.OutcomeHome, model.OutcomeAway}, m.Outcomes)
}

func TestPartnerClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/0xmissing":
			w.WriteHeader(http.StatusNotFound)
		case "/markets/0xbad":
			_, _ = w.Write([]byte(`{not json`))
		case "/markets/0xasked":
			_, _ = w.Write([]byte(`{"address":"0xother","homeOdds":"9","awayOdds":"1.1","isOpen":true}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()
	c := NewPartnerClient(srv.URL, "", 0)

	_, err := c.Market(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrMarketUnknown)

	_, err = c.Market(context.Background(), "0xbad")
	assert.Error(t, err)

	_, err = c.Market(context.Background(), "0xempty")
	assert.Error(t, err)

	_, err = c.Market(context.Background(), "0xasked")
	assert.ErrorContains(t, err, "0xother")

	_, err = NewPartnerClient("", "", 0).Market(context.Background(), "0x1")
	assert.Error(t, err)
}

func TestPartnerClientMarkets(t *testing.T) {
	bodies := map[string]string{
		"array":   `[{"address":"0x1","homeOdds":1.5,"awayOdds":2.5,"isOpen":true},{"address":"","homeOdds":1,"awayOdds":1}]`,
		"wrapped": `{"markets":[{"address":"0x1","homeOdds":1.5,"awayOdds":2.5,"isOpen":true}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/markets", r.URL.Path)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			markets, err := NewPartnerClient(srv.URL, "", 0).Markets(context.Background())
			require.NoError(t, err)
			require.Len(t, markets, 1)
			assert.Equal(t, "0x1", markets[0].ID)
		})
	}
}

func TestPartnerClientRateLimitHonoursContext(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewPartnerClient(srv.URL, "", 0.001)
	_, err := c.Markets(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Markets(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, hits)
}
