package comments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/models"
)

func c(id string, replies ...Node) Node {
	return Node{Comment: &models.Comment{ID: id, Body: "body " + id, Author: models.StringPtr("u_" + id)}, Replies: replies}
}

func more(id, parent string, children ...string) Node {
	return Node{More: &Placeholder{ID: id, ParentID: parent, Children: children, Count: len(children)}}
}

func ids(cs []models.Comment) []string {
	out := make([]string, len(cs))
	for i, cm := range cs {
		out[i] = cm.ID
	}
	return out
}

type stubResolver struct {
	subtrees map[string][]Node
	err      error
	calls    []string
}

func (r *stubResolver) ResolveMore(ctx context.Context, postID string, p Placeholder) ([]Node, error) {
	r.calls = append(r.calls, p.ID)
	if r.err != nil {
		return nil, r.err
	}
	return r.subtrees[p.ID], nil
}

func TestDropPolicyScenario(t *testing.T) {
	forest := []Node{c("C1"), more("m1", "t3_p"), c("C2", c("C3"))}

	out, stats, err := NewFlattener(PolicyDrop, nil, 0).Flatten(context.Background(), "p", forest)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2", "C3"}, ids(out))
	assert.Equal(t, Stats{Comments: 3, Placeholders: 1, Unresolved: 1}, stats)
}

func TestPreOrderDeepTree(t *testing.T) {
	forest := []Node{
		c("a", c("a1", c("a1x"), more("m", "a1")), c("a2")),
		c("b"),
		c("c", more("m2", "c", "z"), c("c1")),
	}

	out, stats, err := NewFlattener(PolicyDrop, nil, 0).Flatten(context.Background(), "p", forest)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a1", "a1x", "a2", "b", "c", "c1"}, ids(out))
	assert.Equal(t, 7, stats.Comments)
	assert.Equal(t, 2, stats.Placeholders)
}

func TestEmptyForestYieldsEmptySlice(t *testing.T) {
	out, _, err := NewFlattener(PolicyDrop, nil, 0).Flatten(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDeletedAuthorIsKept(t *testing.T) {
	deleted := Node{Comment: &models.Comment{ID: "d", Body: "[deleted]"}}
	out, _, err := NewFlattener(PolicyDrop, nil, 0).Flatten(context.Background(), "p", []Node{deleted, c("e")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Author)
}

func TestDuplicatesAppearOnce(t *testing.T) {
	forest := []Node{c("x", c("y")), c("x"), c("y")}
	out, stats, err := NewFlattener(PolicyDrop, nil, 0).Flatten(context.Background(), "p", forest)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids(out))
	assert.Equal(t, 2, stats.Duplicates)
}

func TestResolveAllSplicesInPlace(t *testing.T) {
	resolver := &stubResolver{subtrees: map[string][]Node{
		"m1": {c("R1", c("R1a")), more("m2", "R1")},
		"m2": {c("R2")},
	}}
	forest := []Node{c("C1"), more("m1", "t3_p", "R1"), c("C2", c("C3"))}

	out, stats, err := NewFlattener(PolicyResolveAll, resolver, 0).Flatten(context.Background(), "p", forest)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "R1", "R1a", "R2", "C2", "C3"}, ids(out))
	assert.Equal(t, []string{"m1", "m2"}, resolver.calls)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, 0, stats.Unresolved)
}

func TestResolveAllRespectsBudget(t *testing.T) {
	resolver := &stubResolver{subtrees: map[string][]Node{
		"m1": {c("R1")},
		"m2": {c("R2")},
	}}
	forest := []Node{more("m1", "p"), more("m2", "p")}

	out, stats, err := NewFlattener(PolicyResolveAll, resolver, 1).Flatten(context.Background(), "p", forest)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1"}, ids(out))
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.Unresolved)
}

func TestResolverFailures(t *testing.T) {
	forest := []Node{c("a"), more("m1", "a")}

	t.Run("non-fatal failure counts as unresolved", func(t *testing.T) {
		resolver := &stubResolver{err: errs.Transient(503, "unavailable")}
		out, stats, err := NewFlattener(PolicyResolveAll, resolver, 0).Flatten(context.Background(), "p", forest)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(out))
		assert.Equal(t, 1, stats.Unresolved)
	})

	t.Run("exhausted retries abort", func(t *testing.T) {
		resolver := &stubResolver{err: errs.Wrap(errs.ErrorTypeFatal, errs.Transient(429, "slow down"), "max retry attempts (3) exceeded")}
		_, stats, err := NewFlattener(PolicyResolveAll, resolver, 0).Flatten(context.Background(), "p", forest)
		assert.True(t, errs.Is(err, errs.ErrorTypeFatal))
		assert.Zero(t, stats.Unresolved)
	})

	t.Run("auth failure aborts", func(t *testing.T) {
		resolver := &stubResolver{err: errs.New(errs.ErrorTypeAuth, "token expired")}
		_, _, err := NewFlattener(PolicyResolveAll, resolver, 0).Flatten(context.Background(), "p", forest)
		assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resolver := &stubResolver{err: errors.New("request aborted")}
		_, _, err := NewFlattener(PolicyResolveAll, resolver, 0).Flatten(ctx, "p", forest)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("resolve-all")
	require.NoError(t, err)
	assert.Equal(t, PolicyResolveAll, p)
	assert.Equal(t, "resolve-all", p.String())

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)

	_, err = ParsePolicy("some")
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
}

func TestResolveAllWithoutResolverIsRejected(t *testing.T) {
	forest := []Node{c("a"), more("m1", "a", "b")}

	out, _, err := NewFlattener(PolicyResolveAll, nil, 0).Flatten(context.Background(), "p", forest)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
	assert.Nil(t, out)
}
