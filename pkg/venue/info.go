package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InfoClient reads public market info from the venue REST API
type InfoClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewInfoClient(baseURL string) *InfoClient {
	return &InfoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type symbolInfo struct {
	IndexPrice decimal.Decimal `json:"indexPrice"`
}

// IndexPrices fetches /all/info and returns the index price of every symbol
func (c *InfoClient) IndexPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/all/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get info: unexpected status %d", resp.StatusCode)
	}

	var info map[string]symbolInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(info))
	for sym, si := range info {
		out[sym] = si.IndexPrice
	}
	return out, nil
}
