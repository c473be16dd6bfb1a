package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToItem_Normalization(t *testing.T) {
	d := driveItemResponse{
		ID:                   "item-1",
		Name:                 "report.docx",
		Size:                 1234,
		CreatedDateTime:      "2024-03-01T10:00:00Z",
		LastModifiedDateTime: "2024-03-02T11:30:00Z",
		ParentReference: &parentRef{
			ID:   "parent-1",
			Path: "/drives/d1/root:/Shared/Projects",
		},
		File: &fileFacet{
			Hashes: &hashFacet{QuickXorHash: "abc123=="},
		},
	}

	item := d.toItem(testLogger())

	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "report.docx", item.Name)
	assert.False(t, item.IsFolder)
	assert.Equal(t, int64(1234), item.Size)
	assert.Equal(t, "abc123==", item.QuickXorHash)
	assert.Equal(t, "parent-1", item.ParentID)
	assert.Equal(t, 2024, item.CreatedAt.Year())
	assert.Equal(t, 30, item.ModifiedAt.Minute())
}

func TestToItem_FolderFacet(t *testing.T) {
	d := driveItemResponse{
		ID:     "folder-1",
		Name:   "Projects",
		Folder: &folderFacet{ChildCount: 7},
	}

	item := d.toItem(testLogger())

	assert.True(t, item.IsFolder)
	assert.Equal(t, 7, item.ChildCount)
	assert.Empty(t, item.QuickXorHash)
}

func TestToItem_InvalidTimestamp(t *testing.T) {
	d := driveItemResponse{
		ID:                   "item-1",
		Name:                 "x",
		CreatedDateTime:      "not-a-date",
		LastModifiedDateTime: "",
	}

	item := d.toItem(testLogger())

	assert.True(t, item.CreatedAt.IsZero())
	assert.True(t, item.ModifiedAt.IsZero())
}

func TestItemPath(t *testing.T) {
	tests := []struct {
		name       string
		parentPath string
		itemName   string
		want       string
	}{
		{"root item", "", "a.txt", "/a.txt"},
		{"nested item", "/Shared/Projects", "b.txt", "/Shared/Projects/b.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := Item{Name: tt.itemName, ParentPath: tt.parentPath}
			assert.Equal(t, tt.want, item.Path())
		})
	}
}

func TestNormalizeParentPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/drives/d1/root:/Shared", "/Shared"},
		{"/drive/root:", ""},
		{"/drive/root:/A/B/", "/A/B"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeParentPath(tt.in), "input %q", tt.in)
	}
}

func TestListChildren_FollowsAllCursors(t *testing.T) {
	var srvURL string

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch calls.Add(1) {
		case 1:
			fmt.Fprintf(w, `{"value":[{"id":"i1","name":"a"},{"id":"i2","name":"b"}],"@odata.nextLink":"%s/page2"}`, srvURL)
		case 2:
			fmt.Fprintf(w, `{"value":[{"id":"i3","name":"c"}],"@odata.nextLink":"%s/page3"}`, srvURL)
		default:
			_, _ = w.Write([]byte(`{"value":[{"id":"i4","name":"d"}]}`))
		}

		_ = r
	}))
	defer srv.Close()

	srvURL = srv.URL

	client := newTestClient(t, srv.URL, Options{})
	items, err := client.ListChildren(context.Background(), "d1", "root")
	require.NoError(t, err)

	require.Len(t, items, 4)
	assert.Equal(t, "i1", items[0].ID)
	assert.Equal(t, "i4", items[3].ID)
	assert.Equal(t, int32(3), calls.Load(), "all continuation cursors must be followed")
}

func TestListChildren_ForeignNextLinkRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[],"@odata.nextLink":"https://elsewhere.example/page2"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})

	_, err := client.ListChildren(context.Background(), "d1", "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match base URL")
}

func TestGetItemDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.String(), "/drives/d1/items/item-1")
		assert.Contains(t, r.URL.Query().Get("$select"), "sensitivityLabel")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "item-1",
			"file": {"hashes": {"quickXorHash": "qxh=="}},
			"sensitivityLabel": {"id": "label-1", "displayName": "Confidential"}
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})
	enr, err := client.GetItemDetail(context.Background(), "d1", "item-1")
	require.NoError(t, err)

	assert.Equal(t, "qxh==", enr.QuickXorHash)
	assert.Equal(t, "label-1", enr.LabelID)
	assert.Equal(t, "Confidential", enr.LabelName)
}

func TestGetItemDetail_NoFacets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "item-1"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, Options{})
	enr, err := client.GetItemDetail(context.Background(), "d1", "item-1")
	require.NoError(t, err)

	// Missing hash/label is a valid terminal state.
	assert.Empty(t, enr.QuickXorHash)
	assert.Empty(t, enr.LabelID)
	assert.Empty(t, enr.LabelName)
}

func TestToEnrichment_LabelNameFallback(t *testing.T) {
	d := driveItemResponse{
		SensitivityLabel: &labelFacet{ID: "l1", Name: "internal-only"},
	}

	enr := d.toEnrichment()
	assert.Equal(t, "internal-only", enr.LabelName)
}
