package llm

// CreateOp inserts Item directly after the item with id PrevID.
// An empty PrevID inserts at the head.
type CreateOp struct {
	PrevID string
	Item   *ChatItem
}

// ContextDiff is the minimal edit turning one context into another, keyed by
// item id. Providers with server-side conversation state replay it as
// incremental deletes and inserts.
type ContextDiff struct {
	ToRemove []string
	ToCreate []CreateOp
}

func (d ContextDiff) Empty() bool {
	return len(d.ToRemove) == 0 && len(d.ToCreate) == 0
}

// DiffContext computes the minimal edit from oldCtx to newCtx using the
// longest common subsequence of their item-id sequences. Items present in
// both survive; the rest are removed or created.
func DiffContext(oldCtx, newCtx *ChatContext) ContextDiff {
	oldItems := oldCtx.Items()
	newItems := newCtx.Items()

	keep := lcsIDs(oldItems, newItems)

	var diff ContextDiff
	for _, it := range oldItems {
		if !keep[it.ID] {
			diff.ToRemove = append(diff.ToRemove, it.ID)
		}
	}
	prev := ""
	for _, it := range newItems {
		if !keep[it.ID] {
			diff.ToCreate = append(diff.ToCreate, CreateOp{PrevID: prev, Item: it})
		}
		prev = it.ID
	}
	return diff
}

// ApplyDiff replays a diff onto a context, returning the edited copy.
func ApplyDiff(ctx *ChatContext, diff ContextDiff) *ChatContext {
	removed := make(map[string]bool, len(diff.ToRemove))
	for _, id := range diff.ToRemove {
		removed[id] = true
	}

	var items []*ChatItem
	for _, it := range ctx.Items() {
		if !removed[it.ID] {
			items = append(items, it)
		}
	}

	for _, op := range diff.ToCreate {
		at := 0
		if op.PrevID != "" {
			for i, it := range items {
				if it.ID == op.PrevID {
					at = i + 1
					break
				}
			}
		}
		items = append(items[:at], append([]*ChatItem{op.Item}, items[at:]...)...)
	}
	return &ChatContext{items: items}
}

// lcsIDs returns the set of ids on a longest common subsequence of the two
// item sequences.
func lcsIDs(a, b []*ChatItem) map[string]bool {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i].ID == b[j].ID {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	keep := make(map[string]bool)
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case a[i].ID == b[j].ID:
			keep[a[i].ID] = true
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return keep
}
