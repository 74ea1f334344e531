package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"listing-audit/internal/models"
	"listing-audit/internal/services"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.mercadolibre.com"

// pageSize is the upstream maximum for both search paging and multiget.
const pageSize = 20

// Client fetches a seller's listings from the marketplace REST API. Token
// acquisition and refresh happen elsewhere; the client just sends whatever
// the token func returns.
type Client struct {
	http    *resty.Client
	baseURL string
	token   func() string
}

var _ services.ListingSource = (*Client)(nil)

func NewClient(baseURL string, token func() string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if token == nil {
		token = func() string { return "" }
	}
	http := resty.New()
	http.SetTimeout(30 * time.Second)

	return &Client{
		http:    http,
		baseURL: baseURL,
		token:   token,
	}
}

type searchResponse struct {
	Results []string `json:"results"`
	Paging  struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	} `json:"paging"`
}

type itemResponse struct {
	Code int `json:"code"`
	Body struct {
		ID                string  `json:"id"`
		Title             string  `json:"title"`
		Price             float64 `json:"price"`
		AvailableQuantity int     `json:"available_quantity"`
		SoldQuantity      int     `json:"sold_quantity"`
		CategoryID        string  `json:"category_id"`
		Status            string  `json:"status"`
		Thumbnail         string  `json:"thumbnail"`
	} `json:"body"`
}

// FetchListings pulls every active listing id of the seller and resolves the
// item details in batches. The concatenated upstream item payloads are kept
// verbatim as the snapshot's raw payload.
func (c *Client) FetchListings(ctx context.Context, sellerID string) (*services.FetchResult, error) {
	ids, err := c.searchItemIDs(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	result := &services.FetchResult{}
	var rawBodies []json.RawMessage

	for start := 0; start < len(ids); start += pageSize {
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		items, raw, err := c.fetchItems(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		result.Listings = append(result.Listings, items...)
		rawBodies = append(rawBodies, raw...)
	}

	payload, err := json.Marshal(rawBodies)
	if err != nil {
		return nil, fmt.Errorf("encode raw payload: %w", err)
	}
	result.RawPayload = string(payload)
	return result, nil
}

func (c *Client) searchItemIDs(ctx context.Context, sellerID string) ([]string, error) {
	var ids []string
	offset := 0
	for {
		var page searchResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.token()).
			SetQueryParam("offset", fmt.Sprintf("%d", offset)).
			SetQueryParam("limit", fmt.Sprintf("%d", pageSize)).
			SetResult(&page).
			Get(fmt.Sprintf("%s/users/%s/items/search", c.baseURL, sellerID))
		if err != nil {
			return nil, fmt.Errorf("search items of seller %s: %w", sellerID, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("search items of seller %s: upstream returned %s", sellerID, resp.Status())
		}

		ids = append(ids, page.Results...)
		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= page.Paging.Total {
			return ids, nil
		}
	}
}

func (c *Client) fetchItems(ctx context.Context, ids []string) ([]models.Listing, []json.RawMessage, error) {
	var entries []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token()).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetResult(&entries).
		Get(fmt.Sprintf("%s/items", c.baseURL))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch items %v: %w", ids, err)
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("fetch items %v: upstream returned %s", ids, resp.Status())
	}

	listings := make([]models.Listing, 0, len(entries))
	raw := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		var item itemResponse
		if err := json.Unmarshal(entry, &item); err != nil {
			return nil, nil, fmt.Errorf("decode item payload: %w", err)
		}
		if item.Code != 0 && item.Code != 200 {
			continue
		}
		body, err := json.Marshal(item.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("re-encode item body: %w", err)
		}
		listings = append(listings, models.Listing{
			ItemID:         item.Body.ID,
			Title:          item.Body.Title,
			Price:          item.Body.Price,
			AvailableStock: item.Body.AvailableQuantity,
			SoldCount:      item.Body.SoldQuantity,
			CategoryID:     item.Body.CategoryID,
			Status:         models.NormalizeStatus(item.Body.Status),
			ThumbnailURL:   item.Body.Thumbnail,
			Raw:            string(body),
		})
		raw = append(raw, entry)
	}
	return listings, raw, nil
}
