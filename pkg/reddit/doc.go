// Package reddit fetches subreddit listings and comment trees from the upstream API.
//
// Pagination is newest-first and not time-indexed: FetchPage returns whatever
// upstream considers the next page and the caller filters by time. Listing
// entries with an unexpected shape are reported in Page.Malformed instead of
// failing the page. Status codes map onto pkg/errors kinds: network errors,
// 408, 429 and 5xx are transient, 401/403 are auth failures, 404 is not found,
// and an undecodable body is malformed.
//
//	client := reddit.NewClient(reddit.Options{
//	    AccessToken: token,
//	    Limiter:     limiter,
//	})
//	page, err := client.FetchPage(ctx, "golang", reddit.Cursor{})
//	thread, err := client.FetchComments(ctx, "golang", page.Posts[0].ID)
package reddit
