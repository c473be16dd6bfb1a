package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// BatchLimit is the maximum number of sub-requests the Graph $batch
// endpoint accepts per call.
const BatchLimit = 20

// batchRequest is one sub-request in a $batch envelope.
type batchRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type batchEnvelope struct {
	Requests []batchRequest `json:"requests"`
}

// batchResponseItem is one sub-response in a $batch reply. Body is
// left raw because its shape depends on the sub-request.
type batchResponseItem struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type batchResponse struct {
	Responses []batchResponseItem `json:"responses"`
}

// BatchOutcome is the demultiplexed result of one sub-request. A
// non-2xx Status leaves Enrichment empty — the item keeps whatever
// the listing page knew.
type BatchOutcome struct {
	Status     int
	Enrichment Enrichment
}

// BatchItemDetails fetches enrichment facets for up to BatchLimit items
// in a single $batch call. The returned map is keyed by item ID and
// contains an entry for every sub-response the provider returned;
// callers must treat absent IDs as failed sub-requests.
func (c *Client) BatchItemDetails(ctx context.Context, driveID string, itemIDs []string) (map[string]BatchOutcome, error) {
	if len(itemIDs) > BatchLimit {
		return nil, fmt.Errorf("graph: batch of %d exceeds provider limit %d", len(itemIDs), BatchLimit)
	}

	env := batchEnvelope{Requests: make([]batchRequest, 0, len(itemIDs))}
	for _, id := range itemIDs {
		env.Requests = append(env.Requests, batchRequest{
			ID:     id,
			Method: http.MethodGet,
			URL:    itemDetailPath(driveID, id),
		})
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling batch envelope: %w", err)
	}

	var br batchResponse
	if err := c.PostJSON(ctx, "/$batch", bytes.NewReader(payload), &br); err != nil {
		return nil, err
	}

	outcomes := make(map[string]BatchOutcome, len(br.Responses))

	for _, sub := range br.Responses {
		outcome := BatchOutcome{Status: sub.Status}

		if sub.Status >= http.StatusOK && sub.Status < http.StatusMultipleChoices {
			var dir driveItemResponse
			if umErr := json.Unmarshal(sub.Body, &dir); umErr != nil {
				c.logger.Warn("undecodable batch sub-response body",
					slog.String("item_id", sub.ID),
					slog.String("error", umErr.Error()),
				)
			} else {
				outcome.Enrichment = dir.toEnrichment()
			}
		} else {
			c.logger.Debug("batch sub-request failed",
				slog.String("item_id", sub.ID),
				slog.Int("status", sub.Status),
			)
		}

		outcomes[sub.ID] = outcome
	}

	return outcomes, nil
}
