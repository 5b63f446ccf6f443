package cache

import "context"

// defaultRetryQueueKey parks ops events that failed to publish.
const defaultRetryQueueKey = "events:retry"

// QueueStore is a FIFO queue on a cache list. LPush plus RPop keeps
// oldest-first order for the retry worker.
type QueueStore struct {
	client *CacheClient
	key    string
}

func NewQueueStore(client *CacheClient, key string) *QueueStore {
	if key == "" {
		key = defaultRetryQueueKey
	}
	return &QueueStore{client: client, key: key}
}

func (q *QueueStore) Enqueue(ctx context.Context, item []byte) error {
	if _, err := q.client.LPush(ctx, q.key, string(item)); err != nil {
		return mapStoreErr("enqueue event", err)
	}
	return nil
}

func (q *QueueStore) Dequeue(ctx context.Context) ([]byte, bool, error) {
	raw, found, err := q.client.RPop(ctx, q.key)
	if err != nil {
		return nil, false, mapStoreErr("dequeue event", err)
	}
	if !found {
		return nil, false, nil
	}
	return []byte(raw), true, nil
}

func (q *QueueStore) Size(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key)
	if err != nil {
		return 0, mapStoreErr("queue size", err)
	}
	return n, nil
}
