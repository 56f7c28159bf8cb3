// Package plex talks to a Plex Media Server: library enumeration, metadata
// resolution, play queue mutation and the websocket notification feed.
package plex

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmcdole/plexmirror/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "PlexMirror/1.0"
)

// Client implements domain.MetadataProvider and domain.RemoteQueue against a
// Plex Media Server.
type Client struct {
	baseURL           string
	token             string
	clientID          string
	machineIdentifier string // fetched from /identity on init
	httpClient        *http.Client
	logger            *slog.Logger
}

// NewClient creates a new Plex API client
func NewClient(baseURL, token, clientID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		clientID: clientID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// FetchIdentity fetches and stores the server's machineIdentifier, which the
// play queue URIs require.
func (c *Client) FetchIdentity(ctx context.Context) error {
	reqURL := fmt.Sprintf("%s/identity", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrServerOffline
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// Parse XML response
	var identity struct {
		XMLName           xml.Name `xml:"MediaContainer"`
		MachineIdentifier string   `xml:"machineIdentifier,attr"`
	}
	if err := xml.Unmarshal(body, &identity); err != nil {
		return err
	}

	c.machineIdentifier = identity.MachineIdentifier
	return nil
}

// MachineIdentifier returns the server identity fetched by FetchIdentity.
func (c *Client) MachineIdentifier() string {
	return c.machineIdentifier
}

// doRequest performs an authenticated HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s%s", c.baseURL, path)
	if query != nil {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", "PlexMirror")
	req.Header.Set("X-Plex-Version", "1.0")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("plex request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("plex request failed", "error", err)
		return nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return nil, domain.ErrUnauthorized
	case http.StatusNotFound:
		return nil, domain.ErrItemNotFound
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("plex request error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return body, nil
}

// parseResponse parses a JSON response into APIResponse
func (c *Client) parseResponse(body []byte) (*MediaContainer, error) {
	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp.MediaContainer, nil
}

// GetSections returns all syncable library sections
func (c *Client) GetSections(ctx context.Context) ([]domain.View, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/library/sections", nil)
	if err != nil {
		return nil, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return nil, err
	}

	return MapViews(container.Directory), nil
}

// GetSectionItems enumerates a section's contents. A filter kind narrows the
// listing to that kind (artists, albums and tracks of a music section live
// behind separate type filters).
func (c *Client) GetSectionItems(ctx context.Context, viewID string, filter domain.SectionFilter) ([]domain.RemoteItem, error) {
	var query url.Values
	if filter.Kind != domain.KindUnknown {
		query = url.Values{}
		query.Set("type", strconv.Itoa(typeCode(filter.Kind)))
	}

	path := fmt.Sprintf("/library/sections/%s/all", viewID)
	body, err := c.doRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return nil, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return nil, err
	}

	return c.stampSection(container, MapItems(container.Metadata)), nil
}

// GetSectionLeaves enumerates every playable leaf of a section
func (c *Client) GetSectionLeaves(ctx context.Context, viewID string) ([]domain.RemoteItem, error) {
	path := fmt.Sprintf("/library/sections/%s/allLeaves", viewID)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return nil, err
	}

	return c.stampSection(container, MapItems(container.Metadata)), nil
}

// GetItem resolves full details for a single item
func (c *Client) GetItem(ctx context.Context, id string) (*domain.RemoteItem, error) {
	path := fmt.Sprintf("/library/metadata/%s", id)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return nil, err
	}
	if len(container.Metadata) == 0 {
		return nil, domain.ErrItemNotFound
	}

	item := MapItem(container.Metadata[0])
	return &item, nil
}

// GetChildren resolves an item's immediate children
func (c *Client) GetChildren(ctx context.Context, id string) ([]domain.RemoteItem, error) {
	path := fmt.Sprintf("/library/metadata/%s/children", id)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return nil, err
	}

	return MapItems(container.Metadata), nil
}

// stampSection fills section id/title on items whose per-entry metadata
// omitted them (section listings carry them on the container).
func (c *Client) stampSection(container *MediaContainer, items []domain.RemoteItem) []domain.RemoteItem {
	sectionID := ""
	if container.LibrarySectionID != 0 {
		sectionID = strconv.Itoa(container.LibrarySectionID)
	}
	for i := range items {
		if items[i].ViewID == "" {
			items[i].ViewID = sectionID
		}
		if items[i].ViewName == "" {
			items[i].ViewName = container.LibrarySectionTitle
		}
	}
	return items
}
