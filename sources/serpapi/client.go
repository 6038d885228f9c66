// Package serpapi fetches Google Flights results through SerpAPI and hands
// back the raw payload for the api-mode normaliser.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrMissingAPIKey is returned by New when no key is configured.
var ErrMissingAPIKey = errors.New("serpapi: api key is required")

// ErrProvider wraps an error message returned inside a SerpAPI payload.
var ErrProvider = errors.New("serpapi: provider error")

const (
	engine     = "google_flights"
	oneWayType = "2"
)

type httpClient interface {
	Do(req *retryablehttp.Request) (*http.Response, error)
}

// Client queries the SerpAPI google_flights engine.
type Client struct {
	client     httpClient
	baseURL    string
	apiKey     string
	language   string
	maxFlights int
}

func customRetryPolicy() func(ctx context.Context, resp *http.Response, err error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		// 4xx other than throttling will not get better on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
}

// New builds a client from configuration.
func New(cfg config.SerpAPIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.Logger = nil
	client.CheckRetry = customRetryPolicy()
	client.RetryWaitMin = time.Second
	client.HTTPClient.Timeout = cfg.Timeout

	return newClient(client, cfg), nil
}

func newClient(hc httpClient, cfg config.SerpAPIConfig) *Client {
	maxFlights := cfg.MaxFlights
	if maxFlights <= 0 {
		maxFlights = 100
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &Client{
		client:     hc,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		language:   lang,
		maxFlights: maxFlights,
	}
}

// travelClass maps a cabin name onto SerpAPI's numeric travel_class.
func travelClass(cabin string) string {
	switch strings.ToLower(strings.TrimSpace(cabin)) {
	case "premium economy", "premium_economy":
		return "2"
	case "business":
		return "3"
	case "first":
		return "4"
	case "economy":
		return "1"
	default:
		return ""
	}
}

// Params returns the query parameters for a one-way search.
func (c *Client) Params(sc offers.SearchContext) url.Values {
	v := url.Values{}
	v.Set("engine", engine)
	v.Set("departure_id", strings.ToUpper(sc.Origin))
	v.Set("arrival_id", strings.ToUpper(sc.Destination))
	v.Set("outbound_date", sc.DepartureDate)
	v.Set("type", oneWayType)
	v.Set("max_flights", strconv.Itoa(c.maxFlights))
	v.Set("hl", c.language)
	if tc := travelClass(sc.CabinClass); tc != "" {
		v.Set("travel_class", tc)
	}
	if sc.Currency != "" {
		v.Set("currency", sc.Currency)
	}
	v.Set("api_key", c.apiKey)
	return v
}

// Search runs one query and returns the decoded payload together with the
// raw body.
func (c *Client) Search(ctx context.Context, sc offers.SearchContext) (offers.APIResponse, []byte, error) {
	reqURL := c.baseURL + "?" + c.Params(sc).Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return offers.APIResponse{}, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return offers.APIResponse{}, nil, fmt.Errorf("failed to query serpapi: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return offers.APIResponse{}, nil, fmt.Errorf("failed to read serpapi response: %w", err)
	}

	var payload struct {
		offers.APIResponse
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return offers.APIResponse{}, body, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
		}
		return offers.APIResponse{}, body, fmt.Errorf("failed to decode serpapi response: %w", err)
	}
	if payload.Error != "" {
		return offers.APIResponse{}, body, fmt.Errorf("%w: %s", ErrProvider, payload.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return offers.APIResponse{}, body, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
	return payload.APIResponse, body, nil
}
