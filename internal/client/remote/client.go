package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/pkg/e"
)

const apiKeyHeader = "X-API-Key"

// Client talks to the location REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type envelope struct {
	Success  bool                  `json:"success"`
	Error    string                `json:"error"`
	Location *domain.Location      `json:"location"`
	Stats    *domain.LocationStats `json:"stats"`
}

type listEnvelope struct {
	Locations []domain.Location `json:"locations"`
}

type nearbyEnvelope struct {
	Locations []domain.NearbyLocation `json:"locations"`
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var h HealthStatus
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Upsert(ctx context.Context, loc domain.Location) (*domain.Location, error) {
	loc.Synced = false
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/locations", loc, &env); err != nil {
		return nil, err
	}
	return env.Location, nil
}

func (c *Client) Update(ctx context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/api/locations/"+strconv.FormatInt(id, 10), patch, &env); err != nil {
		return nil, err
	}
	return env.Location, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/locations/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) List(ctx context.Context, f domain.ListFilter) ([]domain.Location, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/api/locations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Locations, nil
}

func (c *Client) Nearby(ctx context.Context, q domain.NearbyQuery) ([]domain.NearbyLocation, error) {
	v := url.Values{}
	v.Set("radius", strconv.FormatFloat(q.RadiusM, 'f', -1, 64))
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	path := fmt.Sprintf("/api/locations/nearby/%s/%s?%s",
		strconv.FormatFloat(q.Lat, 'f', -1, 64),
		strconv.FormatFloat(q.Lng, 'f', -1, 64),
		v.Encode(),
	)

	var env nearbyEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Locations, nil
}

func (c *Client) Stats(ctx context.Context) (*domain.LocationStats, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &env); err != nil {
		return nil, err
	}
	return env.Stats, nil
}

// do sends one request. Transport failures and non-2xx answers wrap
// e.ErrUnavailable, except 400 and 404 which wrap their own sentinels.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := "remote." + method + " " + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return e.Wrap(op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return e.Wrap(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: %w: %v", op, e.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w: %v", op, e.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %s", op, e.ErrNotFound, msg)
		case http.StatusBadRequest:
			return fmt.Errorf("%s: %w: %s", op, e.ErrInvalidInput, msg)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %w: %s", op, e.ErrUnavailable, e.ErrUnauthorized, msg)
		default:
			return fmt.Errorf("%s: %w: status %d: %s", op, e.ErrUnavailable, resp.StatusCode, msg)
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w: %v", op, e.ErrUnavailable, err)
	}
	return nil
}
