package llm

import (
	"testing"

	"github.com/matryer/is"
)

func ids(c *ChatContext) []string {
	out := make([]string, 0, c.Len())
	for _, it := range c.Items() {
		out = append(out, it.ID)
	}
	return out
}

func ctxFromIDs(itemIDs ...string) *ChatContext {
	c := NewChatContext()
	for _, id := range itemIDs {
		c.Insert(&ChatItem{ID: id, Role: RoleUser, Content: "msg " + id})
	}
	return c
}

func TestDiffContext_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		oldIDs   []string
		newIDs   []string
	}{
		{name: "equal", oldIDs: []string{"a", "b", "c"}, newIDs: []string{"a", "b", "c"}},
		{name: "replace middle", oldIDs: []string{"a", "b", "c"}, newIDs: []string{"a", "x", "c"}},
		{name: "append", oldIDs: []string{"a"}, newIDs: []string{"a", "b", "c"}},
		{name: "truncate head", oldIDs: []string{"a", "b", "c"}, newIDs: []string{"b", "c"}},
		{name: "from empty", oldIDs: nil, newIDs: []string{"x", "y"}},
		{name: "to empty", oldIDs: []string{"a", "b"}, newIDs: nil},
		{name: "full rewrite", oldIDs: []string{"a", "b"}, newIDs: []string{"x", "y", "z"}},
		{name: "reorder", oldIDs: []string{"a", "b", "c"}, newIDs: []string{"c", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			oldCtx := ctxFromIDs(tt.oldIDs...)
			newCtx := ctxFromIDs(tt.newIDs...)

			diff := DiffContext(oldCtx, newCtx)
			applied := ApplyDiff(oldCtx, diff)
			is.Equal(ids(applied), ids(newCtx)) // apply(old, diff) == new
		})
	}
}

func TestDiffContext_EqualContextsYieldEmptyDiff(t *testing.T) {
	is := is.New(t)

	c := ctxFromIDs("a", "b", "c")
	diff := DiffContext(c, c.Copy())
	is.True(diff.Empty())
	is.Equal(len(diff.ToRemove), 0)
	is.Equal(len(diff.ToCreate), 0)
}

func TestDiffContext_MinimalEdit(t *testing.T) {
	is := is.New(t)

	oldCtx := ctxFromIDs("a", "b", "c", "d")
	newCtx := ctxFromIDs("a", "x", "c", "d")

	diff := DiffContext(oldCtx, newCtx)
	is.Equal(diff.ToRemove, []string{"b"})
	is.Equal(len(diff.ToCreate), 1)
	is.Equal(diff.ToCreate[0].PrevID, "a")
	is.Equal(diff.ToCreate[0].Item.ID, "x")
}

func TestDiffContext_EmptyBoth(t *testing.T) {
	is := is.New(t)

	diff := DiffContext(NewChatContext(), NewChatContext())
	is.True(diff.Empty())
}

func TestChatContext_TruncateKeepsSystem(t *testing.T) {
	is := is.New(t)

	c := NewChatContext()
	sys := c.AddMessage(RoleSystem, "you are helpful")
	c.AddMessage(RoleUser, "one")
	c.AddMessage(RoleAssistant, "two")
	c.AddMessage(RoleUser, "three")

	c.Truncate(1)
	is.Equal(c.Len(), 2)
	is.Equal(c.Items()[0].ID, sys.ID)
	is.Equal(c.Items()[1].Content, "three")
}

func TestChatContext_CopySharesItems(t *testing.T) {
	is := is.New(t)

	c := NewChatContext()
	orig := c.AddMessage(RoleUser, "hi")

	cp := c.Copy()
	cp.AddMessage(RoleAssistant, "hello")

	is.Equal(c.Len(), 1) // copy growth does not leak back
	is.True(cp.Items()[0] == orig)
}
