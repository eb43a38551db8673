package reddit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// thing is upstream's generic {kind, data} envelope
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    *string `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type linkData struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Selftext    string   `json:"selftext"`
	Author      string   `json:"author"`
	CreatedUTC  *float64 `json:"created_utc"`
	Score       int      `json:"score"`
	NumComments int      `json:"num_comments"`
	Flair       *string  `json:"link_flair_text"`
}

type commentData struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id"`
	Body       string          `json:"body"`
	Author     string          `json:"author"`
	CreatedUTC *float64        `json:"created_utc"`
	Score      int             `json:"score"`
	Replies    json.RawMessage `json:"replies"`
}

type moreData struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id"`
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

type moreChildrenResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// replyListing decodes the replies field, which upstream sends as "" when empty
func replyListing(raw json.RawMessage) (*listing, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte(`""`)) || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var l listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("replies: %w", err)
	}
	return &l, nil
}

// author maps upstream's deleted markers to nil
func author(name string) *string {
	switch name {
	case "", "[deleted]", "[removed]":
		return nil
	}
	return &name
}
