package crawl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/drivescan/drivescan/internal/graph"
)

// ChildLister lists the children of one container, following every
// continuation cursor. graph.Client satisfies it.
type ChildLister interface {
	ListChildren(ctx context.Context, driveID, parentID string) ([]graph.Item, error)
}

// StructuralError indicates the hierarchy violated its tree invariant:
// the provider returned the same (parent, child) edge twice, which
// would send the traversal into a loop.
type StructuralError struct {
	ParentID string
	ChildID  string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("crawl: duplicate edge %s -> %s: hierarchy is not a tree", e.ParentID, e.ChildID)
}

// Tree is the flat result of a traversal: every container and leaf
// reachable from the root, each exactly once.
type Tree struct {
	Containers []graph.Item
	Leaves     []graph.Item
}

// Crawler enumerates a drive hierarchy breadth-first. Traversal is
// strictly sequential — the work queue grows from prior results — and
// any listing failure aborts the whole crawl: a partial tree is never
// returned.
type Crawler struct {
	lister   ChildLister
	driveID  string
	progress *Emitter
	logger   *slog.Logger
}

// NewCrawler builds a crawler over the given drive. progress may be nil.
func NewCrawler(lister ChildLister, driveID string, progress *Emitter, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Crawler{
		lister:   lister,
		driveID:  driveID,
		progress: progress,
		logger:   logger,
	}
}

// Crawl walks the hierarchy rooted at rootID ("root" for the drive
// root) and returns all containers and leaves in discovery order.
func (c *Crawler) Crawl(ctx context.Context, rootID string) (*Tree, error) {
	c.logger.Info("starting drive enumeration",
		slog.String("drive_id", c.driveID),
		slog.String("root_id", rootID),
	)

	tree := &Tree{}
	seen := make(map[edge]struct{})

	var queue fifo[graph.Item]

	if err := c.visit(ctx, rootID, tree, seen, &queue); err != nil {
		return nil, err
	}

	for queue.len() > 0 {
		folder := queue.pop()

		if err := c.visit(ctx, folder.ID, tree, seen, &queue); err != nil {
			return nil, err
		}
	}

	c.logger.Info("drive enumeration complete",
		slog.String("drive_id", c.driveID),
		slog.Int("containers", len(tree.Containers)),
		slog.Int("leaves", len(tree.Leaves)),
	)

	return tree, nil
}

// edge identifies one parent/child link for duplicate detection.
type edge struct {
	parentID string
	childID  string
}

// visit lists one container's children, partitions them, and appends
// new containers to the queue tail and leaves to the result.
func (c *Crawler) visit(ctx context.Context, parentID string, tree *Tree, seen map[edge]struct{}, queue *fifo[graph.Item]) error {
	children, err := c.lister.ListChildren(ctx, c.driveID, parentID)
	if err != nil {
		return fmt.Errorf("crawl: listing children of %s: %w", parentID, err)
	}

	var containers, leaves int

	for i := range children {
		child := children[i]

		key := edge{parentID: parentID, childID: child.ID}
		if _, dup := seen[key]; dup {
			return &StructuralError{ParentID: parentID, ChildID: child.ID}
		}

		seen[key] = struct{}{}

		if child.IsFolder {
			tree.Containers = append(tree.Containers, child)
			queue.push(child)

			containers++
		} else {
			tree.Leaves = append(tree.Leaves, child)

			leaves++
		}
	}

	if containers > 0 {
		c.progress.Emit(EventAddContainers, containers)
	}

	if leaves > 0 {
		c.progress.Emit(EventAddLeaves, leaves)
	}

	return nil
}
