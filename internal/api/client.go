package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const responseCodeOK = 1000

// Client talks to the Drive metadata API. Consumers should depend on the
// narrow subset of methods they use rather than on this type.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client for the given host using the given
// session token. If httpClient is nil, http.DefaultClient is used.
func NewClient(httpClient *http.Client, host, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    "https://" + host,
		token:      token,
	}
}

// do sends a JSON request and decodes the response into result. API errors
// arrive as HTTP 200 with a non-1000 Code in the body and are surfaced as
// *Error so callers can branch on the code.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr Error
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != 0 {
			return fmt.Errorf("API %s (%d): %w", endpoint, resp.StatusCode, &apiErr)
		}
		return fmt.Errorf("API %s returned status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Code int `json:"Code"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	if envelope.Code != responseCodeOK {
		var apiErr Error
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != 0 {
			return fmt.Errorf("API %s: %w", endpoint, &apiErr)
		}
		return fmt.Errorf("API %s returned code %d", endpoint, envelope.Code)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

// FetchRoot returns the share and its root link ID.
func (c *Client) FetchRoot(ctx context.Context, shareID string) (Share, error) {
	var resp struct {
		Share Share `json:"Share"`
	}
	endpoint := "/shares/" + url.PathEscape(shareID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return Share{}, fmt.Errorf("fetching root share: %w", err)
	}

	return resp.Share, nil
}

// ListFolderChildren returns one page of a folder's children and whether
// more pages remain.
func (c *Client) ListFolderChildren(ctx context.Context, shareID, folderID string, page int, showAll bool) ([]Link, bool, error) {
	var resp struct {
		Links []Link `json:"Links"`
		More  bool   `json:"More"`
	}
	endpoint := fmt.Sprintf("/shares/%s/folders/%s/children?Page=%d",
		url.PathEscape(shareID), url.PathEscape(folderID), page)
	if showAll {
		endpoint += "&ShowAll=1"
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, false, fmt.Errorf("listing folder children: %w", err)
	}

	return resp.Links, resp.More, nil
}

// MoveMultiple moves a batch of links to a new parent within one volume.
// The endpoint reports no per-link outcome; the whole batch succeeds or
// the call errors.
func (c *Client) MoveMultiple(ctx context.Context, volumeID string, params MoveMultipleParameters) error {
	endpoint := "/volumes/" + url.PathEscape(volumeID) + "/links/move-multiple"
	if err := c.do(ctx, http.MethodPut, endpoint, params, nil); err != nil {
		return fmt.Errorf("moving links: %w", err)
	}

	return nil
}

// TransferMultiple transfers a batch of photo links between albums.
func (c *Client) TransferMultiple(ctx context.Context, volumeID string, params TransferMultipleParameters) error {
	endpoint := "/photos/volumes/" + url.PathEscape(volumeID) + "/links/transfer-multiple"
	if err := c.do(ctx, http.MethodPut, endpoint, params, nil); err != nil {
		return fmt.Errorf("transferring links: %w", err)
	}

	return nil
}

// Move moves a single link to a new parent.
func (c *Client) Move(ctx context.Context, shareID, linkID string, params MoveParameters) error {
	endpoint := fmt.Sprintf("/shares/%s/links/%s/move", url.PathEscape(shareID), url.PathEscape(linkID))
	if err := c.do(ctx, http.MethodPut, endpoint, params, nil); err != nil {
		return fmt.Errorf("moving link: %w", err)
	}

	return nil
}

// Rename renames a single link in place.
func (c *Client) Rename(ctx context.Context, shareID, linkID string, params RenameParameters) error {
	endpoint := fmt.Sprintf("/shares/%s/links/%s/rename", url.PathEscape(shareID), url.PathEscape(linkID))
	if err := c.do(ctx, http.MethodPut, endpoint, params, nil); err != nil {
		return fmt.Errorf("renaming link: %w", err)
	}

	return nil
}

// Trash moves links into the volume trash. Links that could not be
// trashed are reported as partial failures; everything else succeeded.
func (c *Client) Trash(ctx context.Context, volumeID string, linkIDs []string) ([]PartialFailure, error) {
	body := struct {
		LinkIDs []string `json:"LinkIDs"`
	}{LinkIDs: linkIDs}

	var resp struct {
		Responses []PartialFailure `json:"Responses"`
	}
	endpoint := "/v2/volumes/" + url.PathEscape(volumeID) + "/trash_multiple"
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("trashing links: %w", err)
	}

	return resp.Responses, nil
}

// DeleteTrashed permanently deletes trashed links.
func (c *Client) DeleteTrashed(ctx context.Context, volumeID string, linkIDs []string) ([]PartialFailure, error) {
	body := struct {
		LinkIDs []string `json:"LinkIDs"`
	}{LinkIDs: linkIDs}

	var resp struct {
		Responses []PartialFailure `json:"Responses"`
	}
	endpoint := "/v2/volumes/" + url.PathEscape(volumeID) + "/delete_multiple"
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("deleting trashed links: %w", err)
	}

	return resp.Responses, nil
}

// LatestEventID returns the newest event cursor for a volume. Used to
// reinitialize the event stream after a resync swapped the stores.
func (c *Client) LatestEventID(ctx context.Context, volumeID string) (string, error) {
	var resp struct {
		EventID string `json:"EventID"`
	}
	endpoint := "/volumes/" + url.PathEscape(volumeID) + "/events/latest"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", fmt.Errorf("fetching latest event ID: %w", err)
	}

	return resp.EventID, nil
}

// EventsURL returns the websocket URL streaming change events for a
// volume, starting after the given cursor.
func (c *Client) EventsURL(volumeID, sinceEventID string) string {
	return "wss://" + c.baseURL[len("https://"):] + "/volumes/" + url.PathEscape(volumeID) +
		"/events/stream?Since=" + url.QueryEscape(sinceEventID)
}

// Token returns the session token, for the events stream handshake.
func (c *Client) Token() string {
	return c.token
}
