package reddit

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the OAuth API host; bearer tokens are only accepted here
	DefaultBaseURL = "https://oauth.reddit.com"

	// DefaultPageSize is the largest listing page upstream serves
	DefaultPageSize = 100

	// MaxMoreChildren is the number of ids /api/morechildren accepts per call
	MaxMoreChildren = 100

	postPrefix    = "t3_"
	commentPrefix = "t1_"
)

// Endpoint labels used in logs and metrics
const (
	EndpointListing      = "listing"
	EndpointComments     = "comments"
	EndpointMoreChildren = "morechildren"
)

// ListingURL builds the newest-first listing URL for a subreddit page
func ListingURL(baseURL, subreddit, after string, limit int) string {
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	if after != "" {
		params.Set("after", after)
	}
	return fmt.Sprintf("%s/r/%s/new?%s", strings.TrimRight(baseURL, "/"), url.PathEscape(subreddit), params.Encode())
}

// CommentsURL builds the comment tree URL for a post.
// focus, when set, narrows the tree to one comment's thread.
func CommentsURL(baseURL, subreddit, postID, focus string) string {
	params := url.Values{}
	params.Set("raw_json", "1")
	if focus != "" {
		params.Set("comment", strings.TrimPrefix(focus, commentPrefix))
	}
	return fmt.Sprintf("%s/r/%s/comments/%s?%s", strings.TrimRight(baseURL, "/"),
		url.PathEscape(subreddit), url.PathEscape(strings.TrimPrefix(postID, postPrefix)), params.Encode())
}

// MoreChildrenURL builds the URL that expands up to MaxMoreChildren hidden comment ids
func MoreChildrenURL(baseURL, postID string, children []string) string {
	params := url.Values{}
	params.Set("api_type", "json")
	params.Set("raw_json", "1")
	params.Set("link_id", postPrefix+strings.TrimPrefix(postID, postPrefix))
	params.Set("children", strings.Join(children, ","))
	return fmt.Sprintf("%s/api/morechildren?%s", strings.TrimRight(baseURL, "/"), params.Encode())
}

// IsValidSubreddit checks the name against upstream's rules (2 to 21 letters, digits or underscores)
func IsValidSubreddit(name string) bool {
	if len(name) < 2 || len(name) > 21 {
		return false
	}
	for _, char := range name {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}

// SanitizeSubreddit strips "r/", "/r/" prefixes and trailing slashes or spaces
func SanitizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.TrimRight(name, "/ ")
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
