// Package sfapi is a thin REST client for the platform's data and tooling
// APIs, authenticated with a resolved browser session.
package sfapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultAPIVersion is used when no version is configured.
const DefaultAPIVersion = "v62.0"

// Client talks to one instance with one session credential. Build a new
// Client per operation; nothing here is cached.
type Client struct {
	resty      *resty.Client
	apiVersion string
	credential string
}

// Options tunes a Client.
type Options struct {
	APIVersion string
	Timeout    time.Duration
	// HTTPClient overrides the transport (tests use httptest clients).
	HTTPClient *http.Client
}

// NewClient creates a client for baseURL (e.g. https://acme.my.salesforce.com).
func NewClient(baseURL, credential string, opts Options) *Client {
	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	version := opts.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	rc.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(credential).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "quickloginas/1.0")

	return &Client{resty: rc, apiVersion: version, credential: credential}
}

// InstanceURL returns the https base URL for a host.
func InstanceURL(host string) string {
	return "https://" + host
}

// APIVersion returns the REST API version in use.
func (c *Client) APIVersion() string { return c.apiVersion }

func (c *Client) dataPath(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return "/services/data/" + c.apiVersion + "/" + strings.Join(escaped, "/")
}

// GetRecord fetches one record's field values.
func (c *Client) GetRecord(ctx context.Context, sobject, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.getJSON(ctx, c.dataPath("sobjects", sobject, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Describe fetches field metadata for an object type.
func (c *Client) Describe(ctx context.Context, sobject string) (*DescribeResult, error) {
	var out DescribeResult
	if err := c.getJSON(ctx, c.dataPath("sobjects", sobject, "describe"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRecord PATCHes only the given fields.
func (c *Client) UpdateRecord(ctx context.Context, sobject, id string, fields map[string]interface{}) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(fields).
		Patch(c.dataPath("sobjects", sobject, id))
	if err != nil {
		return fmt.Errorf("update %s %s: %w", sobject, id, err)
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}

// Query runs a SOQL query against the data API.
func (c *Client) Query(ctx context.Context, soql string) (*QueryResult, error) {
	var out QueryResult
	if err := c.getJSON(ctx, c.dataPath("query")+"/", map[string]string{"q": soql}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ToolingQuery runs a SOQL query against the tooling API.
func (c *Client) ToolingQuery(ctx context.Context, soql string) (*QueryResult, error) {
	var out QueryResult
	if err := c.getJSON(ctx, c.dataPath("tooling", "query")+"/", map[string]string{"q": soql}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchPage loads a classic UI page, which authenticates with the sid cookie
// rather than the bearer header.
func (c *Client) FetchPage(ctx context.Context, path string, query url.Values) (string, error) {
	req := c.resty.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		SetCookie(&http.Cookie{Name: "sid", Value: c.credential})
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	if resp.IsError() {
		return "", newAPIError(resp)
	}
	return resp.String(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	req := c.resty.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
