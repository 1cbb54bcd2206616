package analytics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListParams(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/usage/history", nil)
		params, err := parseListParams(r)
		require.NoError(t, err)
		assert.Equal(t, 1, params.Page)
		assert.Equal(t, 20, params.PageSize)
		assert.Nil(t, params.From)
		assert.Nil(t, params.To)
	})

	t.Run("explicit values", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/usage/history?page=3&page_size=50&from=2026-01-01T00:00:00Z", nil)
		params, err := parseListParams(r)
		require.NoError(t, err)
		assert.Equal(t, 3, params.Page)
		assert.Equal(t, 50, params.PageSize)
		require.NotNil(t, params.From)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), params.From.UTC())
	})

	t.Run("rejects bad input", func(t *testing.T) {
		for _, query := range []string{"page=0", "page=abc", "page_size=101", "from=yesterday"} {
			r := httptest.NewRequest("GET", "/api/v1/usage/history?"+query, nil)
			_, err := parseListParams(r)
			assert.Error(t, err, query)
		}
	})
}
