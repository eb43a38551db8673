package reddit

import (
	"context"
	"encoding/json"
	"fmt"

	"subarchive/pkg/models"
)

// Cursor is an opaque pagination position. The zero value means "most recent".
type Cursor struct {
	token     string
	exhausted bool
}

// NewCursor restores a cursor from a saved token
func NewCursor(token string) Cursor {
	return Cursor{token: token}
}

// Token returns the value to persist for resuming
func (c Cursor) Token() string {
	return c.token
}

// Exhausted reports that upstream has no further pages
func (c Cursor) Exhausted() bool {
	return c.exhausted
}

// MalformedItem is a listing entry that could not be turned into a Post
type MalformedItem struct {
	ID     string
	Reason string
}

// Page is one listing response
type Page struct {
	// Posts in upstream order (newest first)
	Posts     []models.Post
	Malformed []MalformedItem
	// Items is the number of entries upstream returned, well-formed or not
	Items   int
	Next    Cursor
	HasMore bool
}

// FetchPage loads the page after cursor. An empty page ends pagination.
func (c *Client) FetchPage(ctx context.Context, subreddit string, cursor Cursor) (*Page, error) {
	url := ListingURL(c.baseURL, subreddit, cursor.token, c.pageSize)

	var resp listing
	if err := c.getJSON(ctx, EndpointListing, url, &resp); err != nil {
		return nil, err
	}

	page := &Page{
		Posts: make([]models.Post, 0, len(resp.Data.Children)),
		Items: len(resp.Data.Children),
	}
	for _, child := range resp.Data.Children {
		post, err := decodePost(child)
		if err != nil {
			page.Malformed = append(page.Malformed, MalformedItem{ID: peekID(child.Data), Reason: err.Error()})
			continue
		}
		page.Posts = append(page.Posts, post)
	}

	after := ""
	if resp.Data.After != nil {
		after = *resp.Data.After
	}
	page.HasMore = after != "" && page.Items > 0
	page.Next = Cursor{token: after, exhausted: !page.HasMore}

	c.logger.DebugWithFields("fetched listing page", map[string]interface{}{
		"subreddit": subreddit,
		"after":     cursor.token,
		"items":     page.Items,
		"malformed": len(page.Malformed),
		"has_more":  page.HasMore,
	})

	return page, nil
}

func decodePost(t thing) (models.Post, error) {
	if t.Kind != "t3" {
		return models.Post{}, fmt.Errorf("unexpected kind %q", t.Kind)
	}
	var d linkData
	if err := json.Unmarshal(t.Data, &d); err != nil {
		return models.Post{}, fmt.Errorf("decode: %w", err)
	}
	if d.ID == "" {
		return models.Post{}, fmt.Errorf("missing id")
	}
	if d.CreatedUTC == nil {
		return models.Post{}, fmt.Errorf("missing created_utc")
	}

	return models.Post{
		ID:          d.ID,
		Title:       d.Title,
		Body:        d.Selftext,
		Author:      author(d.Author),
		CreatedAt:   models.NewTimestamp(*d.CreatedUTC),
		Score:       d.Score,
		NumComments: d.NumComments,
		Flair:       d.Flair,
		Comments:    []models.Comment{},
	}, nil
}

// peekID recovers an id from a payload that failed to decode, for logging
func peekID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ID
}
