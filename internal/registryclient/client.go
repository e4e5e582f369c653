// Package registryclient talks to the remote invite code registry.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/paramstore"
)

const (
	// APIKeyHeader carries the registry credential.
	APIKeyHeader = "x-api-key"

	maxErrorBodyBytes = 64 << 10
)

// ErrMalformedResponse is returned for a 2xx response that is not the
// expected shape, e.g. from a misrouted endpoint.
var ErrMalformedResponse = errors.New("malformed registry response")

type FindResponse struct {
	Items []models.InviteCode `json:"items"`
}

// findResponse tells a missing or null items field apart from an empty one.
type findResponse struct {
	Items *[]models.InviteCode `json:"items"`
}

type UsageRequest struct {
	UsageCount         uint  `json:"usageCount"`
	ExpectedUsageCount *uint `json:"expectedUsageCount,omitempty"`
}

type ConflictResponse struct {
	Current models.InviteCode `json:"current"`
}

// StatusError is returned for any non-2xx registry response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry responded %d: %s", e.StatusCode, e.Body)
}

// ConflictError is returned when a conditional usage write lost a race.
// Current is the usage count the registry holds now.
type ConflictError struct {
	Current uint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("usage count conflict, current is %d", e.Current)
}

type Client struct {
	httpClient *http.Client
}

// New creates a Client. Timeouts are expected to come from the caller's
// context, a nil httpClient uses http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// FindByCode looks up a code. It returns nil without error when nothing
// matches, and the first record when several do.
func (c *Client) FindByCode(ctx context.Context, remote paramstore.RemoteConfig, code string) (*models.InviteCode, error) {
	u := joinURL(remote.Endpoint, "/v1/invite-codes") + "?code=" + url.QueryEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp := &findResponse{}
	if err := c.do(req, remote, resp); err != nil {
		return nil, err
	}

	if resp.Items == nil {
		return nil, fmt.Errorf("%w: no items", ErrMalformedResponse)
	}
	items := *resp.Items
	for i := range items {
		if items[i].ID == "" {
			return nil, fmt.Errorf("%w: item without id", ErrMalformedResponse)
		}
	}

	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// SetUsageCount writes next as the usage count of the code with the given id.
// With a non-nil expected the registry only applies the write if the stored
// count still equals it, and a *ConflictError is returned otherwise.
func (c *Client) SetUsageCount(ctx context.Context, remote paramstore.RemoteConfig, id string, expected *uint, next uint) error {
	body, err := json.Marshal(&UsageRequest{
		UsageCount:         next,
		ExpectedUsageCount: expected,
	})
	if err != nil {
		return err
	}

	u := joinURL(remote.Endpoint, "/v1/invite-codes/"+url.PathEscape(id)+"/usage")
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	err = c.do(req, remote, nil)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		conflict := &ConflictResponse{}
		if jsonErr := json.Unmarshal([]byte(statusErr.Body), conflict); jsonErr != nil {
			return fmt.Errorf("decode conflict response: %w", jsonErr)
		}
		return &ConflictError{Current: conflict.Current.UsageCount}
	}
	return err
}

func (c *Client) do(req *http.Request, remote paramstore.RemoteConfig, out any) error {
	req.Header.Set(APIKeyHeader, remote.Credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		// drain so the connection can be reused.
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}

func joinURL(endpoint, path string) string {
	return strings.TrimSuffix(endpoint, "/") + path
}
