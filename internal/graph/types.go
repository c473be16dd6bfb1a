package graph

import "time"

// Item is a normalized drive item from a listing page. Items are
// immutable once created — enrichment results live in crawl.Detail,
// not here.
type Item struct {
	ID         string
	Name       string
	ParentID   string
	ParentPath string // parentReference.path with the /drive/root: prefix stripped
	Size       int64
	IsFolder   bool
	ChildCount int

	// QuickXorHash is populated when the listing carried the file
	// facet with hashes; otherwise empty and fetched during enrichment.
	QuickXorHash string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Path returns the item's full drive-relative path, NFC-normalized.
func (it *Item) Path() string {
	if it.ParentPath == "" {
		return "/" + it.Name
	}

	return it.ParentPath + "/" + it.Name
}

// Enrichment holds the per-item facets fetched by a detail call.
// A missing hash or label is a valid terminal state, not an error.
type Enrichment struct {
	QuickXorHash string
	LabelID      string
	LabelName    string
}
