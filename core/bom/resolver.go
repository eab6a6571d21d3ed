// Package bom expands a part's bill of materials into a flattened, leveled
// tree. Revision references resolve to immutable snapshots so a tree pinned
// to explicit labels expands identically no matter how the live records
// change afterwards.
package bom

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/sfid"
)

// SnapshotSource supplies revision state to the resolver. Implemented by the
// revision manager; kept as an interface so the two packages stay decoupled.
type SnapshotSource interface {
	// ReleasedLabel returns the record's current released pointer.
	ReleasedLabel(id sfid.ID) (string, bool)

	// HasSnapshot reports whether a snapshot exists under the label.
	HasSnapshot(id sfid.ID, label string) bool

	// SnapshotRecord reads the immutable copy of the record captured in
	// the snapshot.
	SnapshotRecord(id sfid.ID, label string) (*entity.Record, error)
}

// Node is one row of a resolved tree, in depth-first pre-order.
type Node struct {
	Parent           string `yaml:"parent"`
	Use              string `yaml:"use"`
	Name             string `yaml:"name"`
	Qty              any    `yaml:"qty,omitempty"`
	RevSpec          string `yaml:"rev_spec,omitempty"`
	Rev              string `yaml:"rev,omitempty"`
	Level            int    `yaml:"level"`
	GrossQty         any    `yaml:"gross_qty,omitempty"`
	IsAlt            bool   `yaml:"is_alt,omitempty"`
	AlternatesGroup  string `yaml:"alternates_group,omitempty"`
	Cycle            bool   `yaml:"cycle,omitempty"`
	ResolvedFromLive bool   `yaml:"resolved_from_live,omitempty"`
}

// snapshotCacheSize bounds the resolver's snapshot record cache. Snapshots
// are immutable, so entries never need invalidation.
const snapshotCacheSize = 256

// Resolver expands BOM trees against one record store.
type Resolver struct {
	entities *entity.Store
	snaps    SnapshotSource
	cache    *lru.Cache[string, *entity.Record]
	logger   *slog.Logger
}

// NewResolver creates a resolver. logger may be nil.
func NewResolver(entities *entity.Store, snaps SnapshotSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, *entity.Record](snapshotCacheSize)
	return &Resolver{entities: entities, snaps: snaps, cache: cache, logger: logger}
}

// workItem is one pending expansion on the explicit traversal stack. The
// walk is iterative so deep or cyclic trees cannot exhaust goroutine stack,
// and cycle truncation is an ordinary branch.
type workItem struct {
	parent     string
	line       entity.BOMLine
	level      int
	multiplier int
	multOK     bool
	ancestors  []string
	isAlt      bool
	group      string
}

// ResolveTree expands the root part's live BOM into an ordered node list.
//
// maxDepth bounds recursion: 0 emits only the root's direct lines (and their
// alternates) without further expansion; negative means unlimited.
func (r *Resolver) ResolveTree(rootID string, maxDepth int) ([]Node, error) {
	root, err := r.entities.Get(rootID)
	if err != nil {
		return nil, err
	}
	return r.ResolveFromRecord(root, maxDepth)
}

// ResolveFromRecord expands starting at the given record, which may be a
// live record or a snapshot copy. The revision manager uses this when
// cutting so the tree is computed from the exact bytes being snapshotted.
func (r *Resolver) ResolveFromRecord(root *entity.Record, maxDepth int) ([]Node, error) {
	lines, err := entity.DecodeBOM(root.Fields)
	if err != nil {
		return nil, err
	}

	nodes := []Node{}
	stack := make([]workItem, 0, len(lines))
	push := func(items []workItem) {
		for i := len(items) - 1; i >= 0; i-- {
			stack = append(stack, items[i])
		}
	}
	push(lineItems(root.ID.String(), lines, 0, 1, true, []string{root.ID.String()}))

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, childRec := r.expand(item)
		nodes = append(nodes, node)
		if node.Cycle || childRec == nil {
			continue
		}
		if maxDepth >= 0 && item.level+1 > maxDepth {
			continue
		}
		childLines, err := entity.DecodeBOM(childRec.Fields)
		if err != nil {
			r.logger.Warn("skipping malformed bom during resolution", "sfid", node.Use, "error", err)
			continue
		}
		gross, grossOK := intValueOf(node.GrossQty)
		ancestors := appendPath(item.ancestors, node.Use)
		push(lineItems(node.Use, childLines, item.level+1, gross, grossOK, ancestors))
	}
	return nodes, nil
}

// lineItems converts BOM lines into work items, each main line followed by
// its alternates one level deeper sharing qty, revision-spec, and group.
func lineItems(parent string, lines []entity.BOMLine, level, multiplier int, multOK bool, ancestors []string) []workItem {
	items := make([]workItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, workItem{
			parent:     parent,
			line:       line,
			level:      level,
			multiplier: multiplier,
			multOK:     multOK,
			ancestors:  ancestors,
			group:      line.AlternatesGroup,
		})
		for _, alt := range line.Alternates {
			items = append(items, workItem{
				parent:     parent,
				line:       entity.BOMLine{Use: alt.Use, Qty: line.Qty, Rev: line.Rev},
				level:      level + 1,
				multiplier: multiplier,
				multOK:     multOK,
				ancestors:  ancestors,
				isAlt:      true,
				group:      line.AlternatesGroup,
			})
		}
	}
	return items
}

// expand resolves one work item into a node, returning the record to recurse
// into (nil for cycles, missing children, and unparseable identifiers).
func (r *Resolver) expand(item workItem) (Node, *entity.Record) {
	node := Node{
		Parent:          item.parent,
		Use:             item.line.Use,
		Name:            item.line.Use,
		Qty:             item.line.Qty,
		RevSpec:         item.line.Rev,
		Level:           item.level,
		IsAlt:           item.isAlt,
		AlternatesGroup: item.group,
	}
	if qty, ok := item.line.QtyInt(); ok && item.multOK {
		node.GrossQty = qty * item.multiplier
	}

	childID, err := sfid.Parse(item.line.Use)
	if err != nil {
		// Unexpandable reference; keep the raw id as display name.
		return node, nil
	}

	// Resolve the revision-spec to a concrete label.
	spec := item.line.Rev
	if spec == "" || spec == entity.RevReleased {
		if label, ok := r.snaps.ReleasedLabel(childID); ok {
			node.Rev = label
		}
	} else {
		node.Rev = spec
	}

	for _, ancestor := range item.ancestors {
		if ancestor == item.line.Use {
			node.Cycle = true
			return node, nil
		}
	}

	pinned := node.Rev != "" && r.snaps.HasSnapshot(childID, node.Rev)
	var childRec *entity.Record
	if pinned {
		childRec, err = r.snapshotRecord(childID, node.Rev)
		if err != nil {
			r.logger.Warn("snapshot record unreadable, falling back to live", "sfid", childID, "rev", node.Rev, "error", err)
			pinned = false
		}
	}
	if childRec == nil {
		childRec, _ = r.entities.Get(item.line.Use)
	}
	if childRec == nil {
		// Missing child: non-expandable leaf.
		return node, nil
	}
	node.ResolvedFromLive = !pinned
	node.Name = childRec.Name()
	return node, childRec
}

func (r *Resolver) snapshotRecord(id sfid.ID, label string) (*entity.Record, error) {
	key := id.String() + "@" + label
	if rec, ok := r.cache.Get(key); ok {
		return rec, nil
	}
	rec, err := r.snaps.SnapshotRecord(id, label)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, rec)
	return rec, nil
}

func intValueOf(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// appendPath copies the ancestor path before extending it so sibling
// branches never share backing arrays.
func appendPath(path []string, id string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, id)
}
