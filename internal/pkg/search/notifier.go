package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JobFoxHQ/JobFox/internal/pkg/cache"
)

const (
	// ReindexQueueKey is the Redis list drained by the external indexing
	// worker.
	ReindexQueueKey = "search_reindex_queue"

	notifyTimeout = 2 * time.Second
)

// ReindexJob is the payload handed to the indexing collaborator.
type ReindexJob struct {
	ID       string    `json:"id"`
	JobID    uint      `json:"job_id"`
	URL      string    `json:"url"`
	QueuedAt time.Time `json:"queued_at"`
}

// Notifier pushes "content changed" pings onto the reindex queue. The pings
// are strictly best-effort: index freshness never outranks entitlement
// correctness, so every failure here is logged and swallowed.
type Notifier struct {
	client *redis.Client
}

// NewNotifier creates a notifier using the shared cache connection. The
// client is resolved lazily so constructing the notifier never dials.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// NewNotifierWithClient creates a notifier bound to an explicit client.
func NewNotifierWithClient(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

// ContentChanged enqueues a reindex job for the given listing URL.
func (n *Notifier) ContentChanged(jobID uint, url string) {
	client := n.client
	if client == nil {
		client = cache.GetClient()
	}

	payload, err := json.Marshal(ReindexJob{
		ID:       uuid.New().String(),
		JobID:    jobID,
		URL:      url,
		QueuedAt: time.Now(),
	})
	if err != nil {
		log.Warnf("[Search] reindex notification for job %d dropped: %v", jobID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := client.LPush(ctx, ReindexQueueKey, payload).Err(); err != nil {
		log.Warnf("[Search] reindex notification for job %d dropped: %v", jobID, err)
	}
}
