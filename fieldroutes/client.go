// Package fieldroutes is a client for the remote entity API: a search endpoint that returns ids
// matching filters and a detail endpoint that returns full records for a list of ids.
package fieldroutes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/stats"
	"github.com/relloyd/fieldpipe/tenant"
)

const maxErrorBodyLen = 512

// API is the part of the client used by extraction.
type API interface {
	Search(ctx context.Context, entity catalog.Entity, filters Filters) ([]ID, error)
	Get(ctx context.Context, entity catalog.Entity, ids []ID) ([]Record, error)
	Calls() stats.Calls
	Tenant() tenant.Credentials
}

// Client talks to the remote API on behalf of one tenant and counts every call it makes.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Log        logger.Logger
	tenant     tenant.Credentials
	calls      stats.CallCounter
}

// NewClient returns a client for the tenant. An empty baseURL means the production API.
func NewClient(log logger.Logger, baseURL string, creds tenant.Credentials, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = constants.DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = constants.DefaultAPITimeoutSecs * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Log:        log.WithFields(map[string]interface{}{"tenant": creds.ID}),
		tenant:     creds,
	}
}

// Tenant returns the credentials the client authenticates with.
func (c *Client) Tenant() tenant.Credentials {
	return c.tenant
}

// Calls returns the call accounting so far.
func (c *Client) Calls() stats.Calls {
	return c.calls.Snapshot()
}

// Search issues one search request and returns the ids in the order the API sent them.
// Each filter is sent as a query parameter holding its JSON encoding.
func (c *Client) Search(ctx context.Context, entity catalog.Entity, filters Filters) (ids []ID, err error) {
	defer func() { c.observe(entity, stats.EndpointSearch, err) }()
	params := url.Values{}
	for k, f := range filters {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, errors.Wrapf(err, "error encoding filter %v", k)
		}
		params.Set(k, string(b))
	}
	u := c.BaseURL + "/" + entity.SearchPath()
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, entity.SearchPath())
	if err != nil {
		return nil, err
	}
	ids = make([]ID, 0)
	if raw, ok := body[entity.SearchResponseKey()]; ok && string(raw) != "null" {
		if err = json.Unmarshal(raw, &ids); err != nil {
			return nil, errors.Wrapf(err, "error decoding %v from %v", entity.SearchResponseKey(), entity.SearchPath())
		}
	}
	return ids, nil
}

// Get fetches full records for ids. Records are annotated with the tenant's provenance fields.
// A successful response without the records key yields zero records.
func (c *Client) Get(ctx context.Context, entity catalog.Entity, ids []ID) (records []Record, err error) {
	defer func() { c.observe(entity, stats.EndpointGet, err) }()
	payload, err := json.Marshal(map[string][]ID{entity.IDListField: ids})
	if err != nil {
		return nil, errors.Wrap(err, "error encoding detail request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+entity.GetPath(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, entity.GetPath())
	if err != nil {
		return nil, err
	}
	raw, ok := body[entity.GetResponseKey()]
	if !ok || string(raw) == "null" {
		c.Log.Debug("no ", entity.GetResponseKey(), " key in response from ", entity.GetPath())
		return []Record{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	records = make([]Record, 0, len(ids))
	if err = dec.Decode(&records); err != nil {
		return nil, errors.Wrapf(err, "error decoding %v from %v", entity.GetResponseKey(), entity.GetPath())
	}
	for _, r := range records {
		r[constants.ProvenanceTenantIDKey] = c.tenant.ID
		r[constants.ProvenanceTenantNameKey] = c.tenant.Name
	}
	return records, nil
}

// do sends the authenticated request and returns the top-level response object after checking
// the HTTP status and the success flag.
func (c *Client) do(req *http.Request, endpoint string) (map[string]json.RawMessage, error) {
	req.Header.Set("authenticationToken", c.tenant.Token)
	req.Header.Set("authenticationKey", c.tenant.APIKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "error calling %v", endpoint)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading response from %v", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(b), maxErrorBodyLen)}
	}
	body := make(map[string]json.RawMessage)
	if err = json.Unmarshal(b, &body); err != nil {
		return nil, errors.Wrapf(err, "error decoding response from %v", endpoint)
	}
	var status struct {
		Success      bool   `json:"success"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err = json.Unmarshal(b, &status); err != nil {
		return nil, errors.Wrapf(err, "error decoding status from %v", endpoint)
	}
	if !status.Success {
		return nil, APIError{Endpoint: endpoint, Message: status.ErrorMessage}
	}
	return body, nil
}

func (c *Client) observe(entity catalog.Entity, endpoint string, err error) {
	c.calls.Observe(endpoint, err != nil)
	stats.ObserveAPICall(entity.Name, c.tenant.ID, endpoint, err != nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
