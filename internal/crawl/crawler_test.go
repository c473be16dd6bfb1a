package crawl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivescan/drivescan/internal/graph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLister serves a canned hierarchy keyed by parent ID and records
// the order containers were listed in.
type fakeLister struct {
	children map[string][]graph.Item
	errs     map[string]error
	listed   []string
}

func (f *fakeLister) ListChildren(_ context.Context, _, parentID string) ([]graph.Item, error) {
	f.listed = append(f.listed, parentID)

	if err := f.errs[parentID]; err != nil {
		return nil, err
	}

	return f.children[parentID], nil
}

func folder(id, name, parentID string) graph.Item {
	return graph.Item{ID: id, Name: name, ParentID: parentID, IsFolder: true}
}

func file(id, name, parentID, parentPath string) graph.Item {
	return graph.Item{ID: id, Name: name, ParentID: parentID, ParentPath: parentPath}
}

func TestCrawl_BreadthFirst(t *testing.T) {
	// root has 2 leaves and 1 container; the container has 1 leaf.
	lister := &fakeLister{children: map[string][]graph.Item{
		"root": {
			file("L1", "a.txt", "root", ""),
			file("L2", "b.txt", "root", ""),
			folder("C1", "sub", "root"),
		},
		"C1": {
			file("L3", "c.txt", "C1", "/sub"),
		},
	}}

	c := NewCrawler(lister, "d1", nil, testLogger())
	tree, err := c.Crawl(context.Background(), "root")
	require.NoError(t, err)

	require.Len(t, tree.Containers, 1)
	assert.Equal(t, "C1", tree.Containers[0].ID)

	// Breadth-first: root leaves before the subfolder's leaf.
	require.Len(t, tree.Leaves, 3)
	assert.Equal(t, "L1", tree.Leaves[0].ID)
	assert.Equal(t, "L2", tree.Leaves[1].ID)
	assert.Equal(t, "L3", tree.Leaves[2].ID)

	assert.Equal(t, "/sub/c.txt", tree.Leaves[2].Path())
}

func TestCrawl_LevelOrder(t *testing.T) {
	// Two top-level folders, each with a child folder. All of level 1
	// must be listed before any of level 2.
	lister := &fakeLister{children: map[string][]graph.Item{
		"root": {folder("A", "A", "root"), folder("B", "B", "root")},
		"A":    {folder("A1", "A1", "A")},
		"B":    {folder("B1", "B1", "B")},
		"A1":   {},
		"B1":   {},
	}}

	c := NewCrawler(lister, "d1", nil, testLogger())
	_, err := c.Crawl(context.Background(), "root")
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "A", "B", "A1", "B1"}, lister.listed)
}

func TestCrawl_EveryNodeExactlyOnce(t *testing.T) {
	lister := &fakeLister{children: map[string][]graph.Item{
		"root": {folder("A", "A", "root"), file("f1", "f1", "root", "")},
		"A":    {folder("B", "B", "A"), file("f2", "f2", "A", "/A")},
		"B":    {file("f3", "f3", "B", "/A/B")},
	}}

	c := NewCrawler(lister, "d1", nil, testLogger())
	tree, err := c.Crawl(context.Background(), "root")
	require.NoError(t, err)

	ids := map[string]int{}
	for _, it := range tree.Containers {
		ids[it.ID]++
	}

	for _, it := range tree.Leaves {
		ids[it.ID]++
	}

	assert.Len(t, ids, 5)

	for id, n := range ids {
		assert.Equal(t, 1, n, "node %s discovered more than once", id)
	}
}

func TestCrawl_SelfDescendantAborts(t *testing.T) {
	// The API returns folder A as its own child — the duplicate
	// (A, A) edge must abort instead of looping forever.
	lister := &fakeLister{children: map[string][]graph.Item{
		"root": {folder("A", "A", "root")},
		"A":    {folder("A", "A", "A")},
	}}

	// Make the second listing of A return itself again.
	lister.children["A"] = []graph.Item{folder("A", "A", "A")}

	c := NewCrawler(lister, "d1", nil, testLogger())

	_, err := c.Crawl(context.Background(), "root")
	require.Error(t, err)

	var structErr *StructuralError
	require.ErrorAs(t, err, &structErr)
	assert.Equal(t, "A", structErr.ChildID)
}

func TestCrawl_TwoNodeCycleAborts(t *testing.T) {
	lister := &fakeLister{children: map[string][]graph.Item{
		"root": {folder("A", "A", "root")},
		"A":    {folder("B", "B", "A")},
		"B":    {folder("A", "A", "B")},
	}}

	c := NewCrawler(lister, "d1", nil, testLogger())

	_, err := c.Crawl(context.Background(), "root")
	require.Error(t, err)

	var structErr *StructuralError
	assert.ErrorAs(t, err, &structErr)
}

func TestCrawl_ListingFailureIsFatal(t *testing.T) {
	boom := errors.New("listing failed")
	lister := &fakeLister{
		children: map[string][]graph.Item{
			"root": {folder("A", "A", "root"), file("f1", "f1", "root", "")},
		},
		errs: map[string]error{"A": boom},
	}

	c := NewCrawler(lister, "d1", nil, testLogger())

	tree, err := c.Crawl(context.Background(), "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// No partial enumeration is returned.
	assert.Nil(t, tree)
}

func TestCrawl_ProgressEvents(t *testing.T) {
	lister := &fakeLister{children: map[string][]graph.Item{
		"root": {folder("A", "A", "root"), file("f1", "f1", "root", "")},
		"A":    {file("f2", "f2", "A", "/A")},
	}}

	emitter := NewEmitter()
	c := NewCrawler(lister, "d1", emitter, testLogger())

	_, err := c.Crawl(context.Background(), "root")
	require.NoError(t, err)
	emitter.Stop()

	var counters Counters
	for ev := range emitter.Events() {
		switch ev.Kind {
		case EventAddContainers:
			counters.Containers += ev.N
		case EventAddLeaves:
			counters.Leaves += ev.N
		}
	}

	assert.Equal(t, 1, counters.Containers)
	assert.Equal(t, 2, counters.Leaves)
}

func TestCrawl_EmptyRoot(t *testing.T) {
	lister := &fakeLister{children: map[string][]graph.Item{"root": {}}}

	c := NewCrawler(lister, "d1", nil, testLogger())
	tree, err := c.Crawl(context.Background(), "root")
	require.NoError(t, err)

	assert.Empty(t, tree.Containers)
	assert.Empty(t, tree.Leaves)
}
