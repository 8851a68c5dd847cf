// Package metaclient implements the HTTP metadata collaborator named in
// spec.md §6: getPage/getProjectId/getUserId, each a simple fetch-then-
// decode-into-typed-struct round trip, grounded on the teacher's
// database.Load (query → typed struct, wrapped errors) translated from
// SQL rows to HTTP JSON responses, since the teacher has no HTTP client
// of its own to imitate for this role.
package metaclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/takker99/scrapbox-core-go/pkg/page"
	"github.com/takker99/scrapbox-core-go/pkg/room"
)

// ErrNotLoggedIn mirrors room.ErrNotLoggedIn for callers that only
// depend on this package.
var ErrNotLoggedIn = room.ErrNotLoggedIn

// Client is the concrete HTTP implementation of room.MetadataFetcher.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New builds a Client with the given base URL and a default 10s-timeout
// http.Client if httpClient is nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: baseURL, HTTPClient: httpClient}
}

type pageResponse struct {
	ID         string         `json:"id"`
	CommitID   string         `json:"commitId"`
	Persistent bool           `json:"persistent"`
	Editable   bool           `json:"editable"`
	Lines      []lineResponse `json:"lines"`
}

type lineResponse struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	UserID  string `json:"userId"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}

type projectResponse struct {
	ID string `json:"id"`
}

type userResponse struct {
	ID      string `json:"id"`
	IsGuest bool   `json:"isGuest"`
}

// GetPage fetches a page's metadata and lines.
func (c *Client) GetPage(ctx context.Context, project, title string) (room.PageMeta, error) {
	var resp pageResponse
	p := path.Join("api", "pages", project, url.PathEscape(title))
	if err := c.getJSON(ctx, p, &resp); err != nil {
		return room.PageMeta{}, fmt.Errorf("metaclient: get page %s/%s: %w", project, title, err)
	}

	lines := make([]page.Line, len(resp.Lines))
	for i, l := range resp.Lines {
		lines[i] = page.Line{ID: page.LineId(l.ID), Text: l.Text, UserID: l.UserID, Created: l.Created, Updated: l.Updated}
	}

	return room.PageMeta{
		ID:         resp.ID,
		CommitID:   resp.CommitID,
		Lines:      lines,
		Persistent: resp.Persistent,
		Editable:   resp.Editable,
	}, nil
}

// GetProjectID resolves a project name to its opaque id.
func (c *Client) GetProjectID(ctx context.Context, project string) (string, error) {
	var resp projectResponse
	if err := c.getJSON(ctx, path.Join("api", "projects", project), &resp); err != nil {
		return "", fmt.Errorf("metaclient: get project id %s: %w", project, err)
	}
	return resp.ID, nil
}

// GetUserID resolves the logged-in user's id, failing ErrNotLoggedIn for
// a guest session.
func (c *Client) GetUserID(ctx context.Context) (string, error) {
	var resp userResponse
	if err := c.getJSON(ctx, path.Join("api", "users", "me"), &resp); err != nil {
		return "", fmt.Errorf("metaclient: get user id: %w", err)
	}
	if resp.IsGuest {
		return "", room.ErrNotLoggedIn
	}
	return resp.ID, nil
}

func (c *Client) getJSON(ctx context.Context, relPath string, out any) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("bad base url: %w", err)
	}
	u.Path = path.Join(u.Path, relPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusForbidden {
		return room.ErrForbidden
	}
	if res.StatusCode == http.StatusUnauthorized {
		return room.ErrNotLoggedIn
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
