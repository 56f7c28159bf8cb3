package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// queueItemURI builds the server:// URI that identifies a library item in
// play queue requests.
func (c *Client) queueItemURI(item domain.QueueItem) (string, error) {
	if item.RemoteID == "" {
		return "", fmt.Errorf("queue item %q has no remote id", item.File)
	}
	if c.machineIdentifier == "" {
		return "", fmt.Errorf("server identity not fetched yet")
	}
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s",
		c.machineIdentifier, item.RemoteID), nil
}

// queueType returns the play queue media type parameter for an item
func queueType(item domain.QueueItem) string {
	if item.Kind.Category() == domain.CategoryMusic {
		return "audio"
	}
	return "video"
}

func queueState(container *MediaContainer) domain.QueueState {
	state := domain.QueueState{Version: container.PlayQueueVersion}
	if container.PlayQueueID != 0 {
		state.ID = fmt.Sprintf("%d", container.PlayQueueID)
	}
	return state
}

// CreateQueue initializes a remote play queue from a first item
func (c *Client) CreateQueue(ctx context.Context, item domain.QueueItem) (domain.QueueState, domain.QueueItem, error) {
	uri, err := c.queueItemURI(item)
	if err != nil {
		return domain.QueueState{}, item, err
	}

	query := url.Values{}
	query.Set("type", queueType(item))
	query.Set("uri", uri)
	query.Set("includeChapters", "1")
	query.Set("continuous", "0")
	query.Set("repeat", "0")

	body, err := c.doRequest(ctx, http.MethodPost, "/playQueues", query)
	if err != nil {
		return domain.QueueState{}, item, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return domain.QueueState{}, item, err
	}

	state := queueState(container)
	for _, m := range container.Metadata {
		if m.RatingKey == item.RemoteID {
			item.PositionID = MapQueueItem(m).PositionID
			break
		}
	}
	if item.PositionID == "" {
		return state, item, fmt.Errorf("created queue %s does not contain item %s", state.ID, item.RemoteID)
	}
	return state, item, nil
}

// FetchQueue returns the remote queue's current items and state
func (c *Client) FetchQueue(ctx context.Context, id string) (domain.QueueState, []domain.QueueItem, error) {
	query := url.Values{}
	query.Set("own", "1")

	path := fmt.Sprintf("/playQueues/%s", id)
	body, err := c.doRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return domain.QueueState{}, nil, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return domain.QueueState{}, nil, err
	}

	items := make([]domain.QueueItem, 0, len(container.Metadata))
	for _, m := range container.Metadata {
		items = append(items, MapQueueItem(m))
	}
	return queueState(container), items, nil
}

// AppendItem adds an item at the end of the remote queue
func (c *Client) AppendItem(ctx context.Context, state domain.QueueState, item domain.QueueItem) (domain.QueueState, domain.QueueItem, error) {
	uri, err := c.queueItemURI(item)
	if err != nil {
		return state, item, err
	}

	query := url.Values{}
	query.Set("uri", uri)

	path := fmt.Sprintf("/playQueues/%s", state.ID)
	body, err := c.doRequest(ctx, http.MethodPut, path, query)
	if err != nil {
		return state, item, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return state, item, err
	}

	// The appended entry is the last one carrying our rating key.
	for i := len(container.Metadata) - 1; i >= 0; i-- {
		if container.Metadata[i].RatingKey == item.RemoteID {
			item.PositionID = MapQueueItem(container.Metadata[i]).PositionID
			break
		}
	}
	newState := queueState(container)
	if item.PositionID == "" {
		return newState, item, fmt.Errorf("queue %s does not contain appended item %s", state.ID, item.RemoteID)
	}
	return newState, item, nil
}

// MoveItem repositions an entry directly after another; an empty afterID
// moves it to the head of the queue
func (c *Client) MoveItem(ctx context.Context, state domain.QueueState, positionID, afterID string) (domain.QueueState, error) {
	var query url.Values
	if afterID != "" {
		query = url.Values{}
		query.Set("after", afterID)
	}

	path := fmt.Sprintf("/playQueues/%s/items/%s/move", state.ID, positionID)
	body, err := c.doRequest(ctx, http.MethodPut, path, query)
	if err != nil {
		return state, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return state, err
	}
	return queueState(container), nil
}

// RemoveItem deletes an entry from the remote queue
func (c *Client) RemoveItem(ctx context.Context, state domain.QueueState, positionID string) (domain.QueueState, error) {
	path := fmt.Sprintf("/playQueues/%s/items/%s", state.ID, positionID)
	body, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return state, err
	}

	container, err := c.parseResponse(body)
	if err != nil {
		return state, err
	}
	return queueState(container), nil
}
