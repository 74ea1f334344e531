package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"listing-audit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeItem struct {
	id, title, status, category string
	price                       float64
	stock, sold                 int
}

func fakeMarketplace(t *testing.T, items []fakeItem) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/users/42/items/search", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var ids []string
		for i := offset; i < len(items) && i < offset+limit; i++ {
			ids = append(ids, items[i].id)
		}
		resp := map[string]interface{}{
			"results": ids,
			"paging":  map[string]int{"total": len(items), "offset": offset, "limit": limit},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		wanted := strings.Split(r.URL.Query().Get("ids"), ",")
		var out []map[string]interface{}
		for _, id := range wanted {
			for _, it := range items {
				if it.id != id {
					continue
				}
				out = append(out, map[string]interface{}{
					"code": 200,
					"body": map[string]interface{}{
						"id":                 it.id,
						"title":              it.title,
						"price":              it.price,
						"available_quantity": it.stock,
						"sold_quantity":      it.sold,
						"category_id":        it.category,
						"status":             it.status,
						"thumbnail":          fmt.Sprintf("https://cdn.example/%s.jpg", it.id),
					},
				})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return httptest.NewServer(mux)
}

func TestFetchListings(t *testing.T) {
	items := make([]fakeItem, 0, 45)
	for i := 0; i < 45; i++ {
		items = append(items, fakeItem{
			id:       fmt.Sprintf("MLA%03d", i),
			title:    fmt.Sprintf("Item %d", i),
			price:    float64(i) + 0.5,
			stock:    i,
			sold:     i * 2,
			category: "C1",
			status:   "active",
		})
	}
	srv := fakeMarketplace(t, items)
	defer srv.Close()

	client := NewClient(srv.URL, func() string { return "token" })

	result, err := client.FetchListings(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, result.Listings, 45, "paging must walk every page")

	first := result.Listings[0]
	assert.Equal(t, "MLA000", first.ItemID)
	assert.Equal(t, "Item 0", first.Title)
	assert.Equal(t, models.StatusActive, first.Status)
	assert.Equal(t, "https://cdn.example/MLA000.jpg", first.ThumbnailURL)
	assert.NotEmpty(t, first.Raw)

	// Raw payload holds the verbatim upstream item entries.
	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(result.RawPayload), &raw))
	assert.Len(t, raw, 45)
}

func TestFetchListingsStatusNormalization(t *testing.T) {
	srv := fakeMarketplace(t, []fakeItem{
		{id: "MLA1", title: "A", status: "paused", price: 1},
		{id: "MLA2", title: "B", status: "under_review", price: 2},
	})
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	result, err := client.FetchListings(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, result.Listings, 2)
	assert.Equal(t, models.StatusPaused, result.Listings[0].Status)
	assert.Equal(t, models.StatusOther, result.Listings[1].Status)
}

func TestFetchListingsEmptySeller(t *testing.T) {
	srv := fakeMarketplace(t, nil)
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	result, err := client.FetchListings(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, result.Listings)
}

func TestFetchListingsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.FetchListings(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
