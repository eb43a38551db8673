package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subarchive/pkg/comments"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/models"
)

// Thread is a post's comment forest as upstream returned it, placeholders included
type Thread struct {
	Forest []comments.Node
	// Malformed counts comment nodes that were skipped
	Malformed int
}

// FetchComments loads the comment tree of one post
func (c *Client) FetchComments(ctx context.Context, subreddit, postID string) (*Thread, error) {
	forest, malformed, err := c.fetchTree(ctx, subreddit, postID, "")
	if err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("fetched comment tree", map[string]interface{}{
		"post_id":   postID,
		"roots":     len(forest),
		"malformed": malformed,
	})
	return &Thread{Forest: forest, Malformed: malformed}, nil
}

// ResolveMore expands a placeholder into the subtree it stands for
func (c *Client) ResolveMore(ctx context.Context, subreddit, postID string, p comments.Placeholder) ([]comments.Node, error) {
	if p.Continuation() {
		return c.resolveContinuation(ctx, subreddit, postID, p)
	}

	var things []thing
	for _, ids := range chunk(p.Children, MaxMoreChildren) {
		var resp moreChildrenResponse
		if err := c.getJSON(ctx, EndpointMoreChildren, MoreChildrenURL(c.baseURL, postID, ids), &resp); err != nil {
			return nil, err
		}
		if len(resp.JSON.Errors) > 0 {
			return nil, errs.Malformed(fmt.Errorf("%v", resp.JSON.Errors), "morechildren returned errors")
		}
		things = append(things, resp.JSON.Data.Things...)
	}

	nodes := nestByParent(things)
	c.logger.DebugWithFields("resolved placeholder", map[string]interface{}{
		"post_id":  postID,
		"parent":   p.ParentID,
		"children": len(p.Children),
		"roots":    len(nodes),
	})
	return nodes, nil
}

// Resolver binds the client to one subreddit for comments.Flattener
func (c *Client) Resolver(subreddit string) comments.Resolver {
	return subredditResolver{client: c, subreddit: subreddit}
}

type subredditResolver struct {
	client    *Client
	subreddit string
}

func (r subredditResolver) ResolveMore(ctx context.Context, postID string, p comments.Placeholder) ([]comments.Node, error) {
	return r.client.ResolveMore(ctx, r.subreddit, postID, p)
}

// resolveContinuation fetches the thread rooted at the placeholder's parent and returns its replies
func (c *Client) resolveContinuation(ctx context.Context, subreddit, postID string, p comments.Placeholder) ([]comments.Node, error) {
	forest, _, err := c.fetchTree(ctx, subreddit, postID, p.ParentID)
	if err != nil {
		return nil, err
	}
	parentID := strings.TrimPrefix(p.ParentID, commentPrefix)
	for _, n := range forest {
		if n.Comment != nil && n.Comment.ID == parentID {
			return n.Replies, nil
		}
	}
	return forest, nil
}

func (c *Client) fetchTree(ctx context.Context, subreddit, postID, focus string) ([]comments.Node, int, error) {
	var resp []listing
	if err := c.getJSON(ctx, EndpointComments, CommentsURL(c.baseURL, subreddit, postID, focus), &resp); err != nil {
		return nil, 0, err
	}
	if len(resp) < 2 {
		return nil, 0, errs.Malformed(fmt.Errorf("got %d listings", len(resp)), "comment response is missing the comment listing")
	}
	forest, malformed := decodeForest(resp[1].Data.Children)
	return forest, malformed, nil
}

func decodeForest(children []thing) ([]comments.Node, int) {
	nodes := make([]comments.Node, 0, len(children))
	malformed := 0
	for _, child := range children {
		node, _, bad := decodeNode(child)
		malformed += bad
		if node != nil {
			nodes = append(nodes, *node)
		}
	}
	return nodes, malformed
}

// decodeNode returns the node, its parent fullname and the number of malformed nodes met
func decodeNode(t thing) (*comments.Node, string, int) {
	switch t.Kind {
	case "t1":
		var d commentData
		if err := json.Unmarshal(t.Data, &d); err != nil || d.ID == "" || d.CreatedUTC == nil {
			return nil, "", 1
		}
		node := &comments.Node{Comment: &models.Comment{
			ID:        d.ID,
			Body:      d.Body,
			Author:    author(d.Author),
			CreatedAt: models.NewTimestamp(*d.CreatedUTC),
			Score:     d.Score,
		}}
		replies, err := replyListing(d.Replies)
		if err != nil {
			return node, d.ParentID, 1
		}
		bad := 0
		if replies != nil {
			node.Replies, bad = decodeForest(replies.Data.Children)
		}
		return node, d.ParentID, bad
	case "more":
		var d moreData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, "", 1
		}
		return &comments.Node{More: &comments.Placeholder{
			ID:       d.ID,
			ParentID: d.ParentID,
			Children: d.Children,
			Count:    d.Count,
		}}, d.ParentID, 0
	default:
		return nil, "", 1
	}
}

// nestByParent rebuilds a tree from the flat list /api/morechildren returns.
// Items whose parent is not in the list become roots, in upstream order.
func nestByParent(things []thing) []comments.Node {
	type entry struct {
		node   comments.Node
		parent string
	}

	entries := make([]entry, 0, len(things))
	present := make(map[string]bool)
	for _, t := range things {
		node, parent, _ := decodeNode(t)
		if node == nil {
			continue
		}
		entries = append(entries, entry{node: *node, parent: parent})
		if node.Comment != nil {
			present[commentPrefix+node.Comment.ID] = true
		}
	}

	children := make(map[string][]int)
	var roots []int
	for i, e := range entries {
		if present[e.parent] {
			children[e.parent] = append(children[e.parent], i)
		} else {
			roots = append(roots, i)
		}
	}

	var build func(idx []int) []comments.Node
	build = func(idx []int) []comments.Node {
		out := make([]comments.Node, 0, len(idx))
		for _, i := range idx {
			n := entries[i].node
			if n.Comment != nil {
				if kids := children[commentPrefix+n.Comment.ID]; len(kids) > 0 {
					n.Replies = append(n.Replies, build(kids)...)
				}
			}
			out = append(out, n)
		}
		return out
	}
	return build(roots)
}
