// Package comments turns a nested comment forest into the flat, ordered list stored with each post.
package comments

import (
	"context"
	"fmt"
	"strings"

	errs "subarchive/pkg/errors"
	"subarchive/pkg/models"
)

// Policy decides what happens to "load more" placeholders
type Policy int

const (
	// PolicyDrop discards placeholders without fetching their replies
	PolicyDrop Policy = iota
	// PolicyResolveAll fetches each placeholder's replies and splices them in place
	PolicyResolveAll
)

func (p Policy) String() string {
	switch p {
	case PolicyResolveAll:
		return "resolve-all"
	default:
		return "drop"
	}
}

// ParsePolicy accepts "drop" or "resolve-all"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop", "":
		return PolicyDrop, nil
	case "resolve-all", "resolve_all", "resolveall":
		return PolicyResolveAll, nil
	default:
		return PolicyDrop, errs.Configuration(fmt.Sprintf("unknown comment placeholder policy %q", s))
	}
}

// Placeholder marks replies upstream did not include in the tree
type Placeholder struct {
	ID       string
	ParentID string
	// Children lists the ids of the missing comments; empty for "continue this thread" links
	Children []string
	Count    int
}

// Continuation reports whether the placeholder points at a deeper thread rather than listing ids
func (p Placeholder) Continuation() bool {
	return len(p.Children) == 0
}

// Node is either a real comment with replies or a placeholder
type Node struct {
	Comment *models.Comment
	More    *Placeholder
	Replies []Node
}

// Resolver fetches the subtree hidden behind a placeholder
type Resolver interface {
	ResolveMore(ctx context.Context, postID string, p Placeholder) ([]Node, error)
}

// Stats describes one flattening pass
type Stats struct {
	Comments     int
	Placeholders int
	Resolved     int
	Unresolved   int
	Duplicates   int
}

// Add accumulates other into s
func (s *Stats) Add(other Stats) {
	s.Comments += other.Comments
	s.Placeholders += other.Placeholders
	s.Resolved += other.Resolved
	s.Unresolved += other.Unresolved
	s.Duplicates += other.Duplicates
}

// Flattener walks a forest depth-first in pre-order
type Flattener struct {
	Policy   Policy
	Resolver Resolver
	// MaxResolves caps resolver calls per post; 0 means no cap
	MaxResolves int
}

// NewFlattener creates a flattener. resolver may be nil for PolicyDrop only;
// Flatten rejects PolicyResolveAll without one.
func NewFlattener(policy Policy, resolver Resolver, maxResolves int) *Flattener {
	return &Flattener{Policy: policy, Resolver: resolver, MaxResolves: maxResolves}
}

type pass struct {
	postID string
	seen   map[string]struct{}
	out    []models.Comment
	stats  Stats
	calls  int
}

// Flatten returns the post's real comments, parent before children and siblings
// in upstream order. Each comment id appears once. Deleted-author comments are kept.
func (f *Flattener) Flatten(ctx context.Context, postID string, forest []Node) ([]models.Comment, Stats, error) {
	if f.Policy == PolicyResolveAll && f.Resolver == nil {
		return nil, Stats{}, errs.Configuration("comments: resolve-all policy needs a resolver")
	}
	p := &pass{
		postID: postID,
		seen:   make(map[string]struct{}),
		out:    make([]models.Comment, 0),
	}
	if err := f.walk(ctx, p, forest); err != nil {
		return nil, p.stats, err
	}
	return p.out, p.stats, nil
}

func (f *Flattener) walk(ctx context.Context, p *pass, nodes []Node) error {
	for _, n := range nodes {
		switch {
		case n.More != nil:
			p.stats.Placeholders++
			if err := f.expand(ctx, p, *n.More); err != nil {
				return err
			}
		case n.Comment != nil:
			if _, dup := p.seen[n.Comment.ID]; dup {
				p.stats.Duplicates++
			} else {
				p.seen[n.Comment.ID] = struct{}{}
				p.out = append(p.out, *n.Comment)
				p.stats.Comments++
			}
			if err := f.walk(ctx, p, n.Replies); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Flattener) expand(ctx context.Context, p *pass, more Placeholder) error {
	if f.Policy != PolicyResolveAll {
		p.stats.Unresolved++
		return nil
	}
	if f.MaxResolves > 0 && p.calls >= f.MaxResolves {
		p.stats.Unresolved++
		return nil
	}

	p.calls++
	// Retrying is the resolver's job; any error that is not fatal drops the subtree.
	subtree, err := f.Resolver.ResolveMore(ctx, p.postID, more)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errs.Is(err, errs.ErrorTypeAuth) || errs.Is(err, errs.ErrorTypeFatal) {
			return err
		}
		p.stats.Unresolved++
		return nil
	}

	p.stats.Resolved++
	return f.walk(ctx, p, subtree)
}
