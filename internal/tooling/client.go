// Package tooling queries the Salesforce Tooling API for metadata dependencies.
package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/schemamirror/sfsync/internal/sfcli"
)

// DefaultAPIVersion is used when no version is configured
const DefaultAPIVersion = "59.0"

// FieldDependencyQuery selects every component that references a custom field
const FieldDependencyQuery = "SELECT MetadataComponentName, MetadataComponentType, RefMetadataComponentName, RefMetadataComponentType " +
	"FROM MetadataComponentDependency WHERE RefMetadataComponentType = 'CustomField'"

// ErrQueryFailed is returned for non-2xx responses
var ErrQueryFailed = errors.New("tooling query failed")

// Dependency is one MetadataComponentDependency record
type Dependency struct {
	MetadataComponentName    string `json:"MetadataComponentName"`
	MetadataComponentType    string `json:"MetadataComponentType"`
	RefMetadataComponentName string `json:"RefMetadataComponentName"`
	RefMetadataComponentType string `json:"RefMetadataComponentType"`
}

type queryPage struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl"`
	Records        []json.RawMessage `json:"records"`
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// Client runs Tooling API queries against one org
type Client struct {
	http       *resty.Client
	apiVersion string
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// NewClient creates a client authenticated with the given session
func NewClient(auth sfcli.AuthContext, apiVersion string, opts ...Option) *Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	apiVersion = strings.TrimPrefix(apiVersion, "v")

	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(auth.InstanceURL, "/")).
			SetAuthToken(auth.AccessToken).
			SetHeader("Accept", "application/json").
			SetTimeout(2 * time.Minute),
		apiVersion: apiVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query runs a Tooling query and follows nextRecordsUrl until the result is
// done. Records from every page are returned in order.
func (c *Client) Query(ctx context.Context, soql string) ([]json.RawMessage, error) {
	var records []json.RawMessage

	page, err := c.get(ctx, fmt.Sprintf("/services/data/v%s/tooling/query/", c.apiVersion), soql)
	if err != nil {
		return nil, err
	}
	records = append(records, page.Records...)

	for !page.Done {
		if page.NextRecordsURL == "" {
			return nil, fmt.Errorf("%w: page not done but nextRecordsUrl is empty", ErrQueryFailed)
		}
		page, err = c.get(ctx, page.NextRecordsURL, "")
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
	}

	return records, nil
}

func (c *Client) get(ctx context.Context, path, soql string) (*queryPage, error) {
	page := &queryPage{}

	req := c.http.R().SetContext(ctx).SetResult(page)
	if soql != "" {
		req.SetQueryParam("q", soql)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("tooling request %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: %s", ErrQueryFailed, resp.Status(), describeError(resp.Body()))
	}
	return page, nil
}

func describeError(body []byte) string {
	var errs []apiError
	if err := json.Unmarshal(body, &errs); err == nil && len(errs) > 0 {
		return errs[0].ErrorCode + ": " + errs[0].Message
	}
	if len(body) > 300 {
		body = body[:300]
	}
	return string(body)
}

// FieldDependencies returns every component dependency on a custom field
func (c *Client) FieldDependencies(ctx context.Context) ([]Dependency, error) {
	raw, err := c.Query(ctx, FieldDependencyQuery)
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, 0, len(raw))
	for _, r := range raw {
		var d Dependency
		if err := json.Unmarshal(r, &d); err != nil {
			return nil, fmt.Errorf("failed to decode dependency record: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, nil
}
