package entropy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClientUsesCryptoSeed(t *testing.T) {
	assert.Nil(t, NewClient(""))
	var c *Client
	assert.NotZero(t, c.Seed(context.Background()))
	assert.Positive(t, CryptoSeed())
}

func TestSeedFromRandomOrg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "generateIntegers", req.Method)
		assert.Equal(t, "key", req.Params["apiKey"])
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"random":{"data":[3,7]}},"id":1}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.Endpoint = srv.URL
	assert.Equal(t, int64(3*maxDraw+7), c.Seed(context.Background()))
}

func TestSeedFallsBackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"message":"bad key"},"id":1}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.Endpoint = srv.URL
	_, err := c.fetch(context.Background())
	assert.ErrorContains(t, err, "bad key")
	assert.NotZero(t, c.Seed(context.Background()))
}
