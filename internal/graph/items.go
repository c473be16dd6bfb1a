package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// defaultPageSize is the $top value for child listings. 200 is the
// maximum the Graph API allows for drive item collections.
const defaultPageSize = 200

// listSelect is the field set requested on every listing page. The
// file facet is included so hashes already present in the listing save
// a per-item detail call later.
const listSelect = "id,name,size,createdDateTime,lastModifiedDateTime,parentReference,folder,file"

// detailSelect is the field set for the per-item enrichment call.
// sensitivityLabel is the fixed label contract — id and displayName.
const detailSelect = "id,file,sensitivityLabel"

// rootPathPrefix is stripped from parentReference.path to produce
// drive-relative paths.
const rootPathPrefix = "/drive/root:"

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Unexported — callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	CreatedDateTime      string       `json:"createdDateTime"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
	SensitivityLabel     *labelFacet  `json:"sensitivityLabel"`
}

type parentRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type labelFacet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:       d.ID,
		Name:     norm.NFC.String(d.Name),
		Size:     d.Size,
		IsFolder: d.Folder != nil,
	}

	if d.ParentReference != nil {
		item.ParentID = d.ParentReference.ID
		item.ParentPath = normalizeParentPath(d.ParentReference.Path)
	}

	if d.Folder != nil {
		item.ChildCount = d.Folder.ChildCount
	}

	// File hashes — nil-safe at each level.
	if d.File != nil && d.File.Hashes != nil {
		item.QuickXorHash = d.File.Hashes.QuickXorHash
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	return item
}

// toEnrichment extracts the enrichment facets from a detail response.
func (d *driveItemResponse) toEnrichment() Enrichment {
	var e Enrichment

	if d.File != nil && d.File.Hashes != nil {
		e.QuickXorHash = d.File.Hashes.QuickXorHash
	}

	if d.SensitivityLabel != nil {
		e.LabelID = d.SensitivityLabel.ID

		e.LabelName = d.SensitivityLabel.DisplayName
		if e.LabelName == "" {
			e.LabelName = d.SensitivityLabel.Name
		}
	}

	return e
}

// normalizeParentPath strips the /drive/root: prefix and NFC-normalizes
// the remainder. An empty result means the item sits at the drive root.
func normalizeParentPath(p string) string {
	if idx := strings.Index(p, rootPathPrefix); idx >= 0 {
		p = p[idx+len(rootPathPrefix):]
	}

	return norm.NFC.String(strings.TrimSuffix(p, "/"))
}

// parseTimestamp parses an RFC3339 timestamp. Invalid or missing values
// are logged and replaced with the zero time — remote metadata is
// reported as-is, never fabricated.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp in listing",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}

// ListChildren returns all children of the given folder, following
// every continuation cursor before returning. parentID "root" lists
// the drive root.
func (c *Client) ListChildren(ctx context.Context, driveID, parentID string) ([]Item, error) {
	path := fmt.Sprintf("/drives/%s/items/%s/children?$select=%s&$top=%d",
		driveID, parentID, listSelect, defaultPageSize)
	if parentID == "root" {
		path = fmt.Sprintf("/drives/%s/root/children?$select=%s&$top=%d",
			driveID, listSelect, defaultPageSize)
	}

	var items []Item

	page := 1

	for path != "" {
		pageItems, nextPath, err := c.listChildrenPage(ctx, path, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		path = nextPath
		page++
	}

	c.logger.Debug("listed children",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// listChildrenPage fetches a single page of children and returns the
// items and the next page path (empty if no more pages).
func (c *Client) listChildrenPage(ctx context.Context, path string, page int) ([]Item, string, error) {
	var lcr listChildrenResponse
	if err := c.GetJSON(ctx, path, &lcr); err != nil {
		return nil, "", err
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(items)),
	)

	var nextPath string
	if lcr.NextLink != "" {
		var stripErr error

		nextPath, stripErr = c.stripBaseURL(lcr.NextLink)
		if stripErr != nil {
			return nil, "", stripErr
		}
	}

	return items, nextPath, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// itemDetailPath builds the enrichment GET path for one item.
func itemDetailPath(driveID, itemID string) string {
	return fmt.Sprintf("/drives/%s/items/%s?$select=%s", driveID, itemID, detailSelect)
}

// GetItemDetail fetches the enrichment facets (hash, sensitivity label)
// for a single item.
func (c *Client) GetItemDetail(ctx context.Context, driveID, itemID string) (Enrichment, error) {
	var dir driveItemResponse
	if err := c.GetJSON(ctx, itemDetailPath(driveID, itemID), &dir); err != nil {
		return Enrichment{}, err
	}

	return dir.toEnrichment(), nil
}
