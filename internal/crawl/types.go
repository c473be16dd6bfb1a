package crawl

import (
	"time"

	"github.com/drivescan/drivescan/internal/graph"
)

// Detail is the fully enriched record for one leaf. The JSON tags
// define the export schema. Empty hash/label fields mean the facet was
// not available — a valid terminal state.
type Detail struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Path                 string    `json:"path"`
	Size                 int64     `json:"size"`
	IsFolder             bool      `json:"isFolder"`
	QuickXorHash         string    `json:"quickXorHash"`
	SensitivityLabelID   string    `json:"sensitivityLabelId"`
	SensitivityLabelName string    `json:"sensitivityLabelName"`
	CreatedDateTime      time.Time `json:"createdDateTime"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
}

// detailFromItem builds a Detail from listing-page fields alone.
// Enrichment calls fill in whatever the listing did not carry.
func detailFromItem(it *graph.Item) Detail {
	return Detail{
		ID:                   it.ID,
		Name:                 it.Name,
		Path:                 it.Path(),
		Size:                 it.Size,
		IsFolder:             it.IsFolder,
		QuickXorHash:         it.QuickXorHash,
		CreatedDateTime:      it.CreatedAt,
		LastModifiedDateTime: it.ModifiedAt,
	}
}

// applyEnrichment merges fetched facets into the detail. Listing-page
// values win for the hash when both are present — they refer to the
// same content version or newer.
func (d *Detail) applyEnrichment(enr graph.Enrichment) {
	if d.QuickXorHash == "" {
		d.QuickXorHash = enr.QuickXorHash
	}

	d.SensitivityLabelID = enr.LabelID
	d.SensitivityLabelName = enr.LabelName
}
