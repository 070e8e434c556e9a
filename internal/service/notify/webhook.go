package notify

import (
	"context"
	"fmt"

	"CoinSentry/internal/domain/models"
	xhttp "CoinSentry/pkg/http"
	"CoinSentry/pkg/queue"
)

// MsgTypeAlert is the queue message type for alert notifications.
const MsgTypeAlert = "alert_notification"

// WebhookJob posts severe alerts to a configured webhook URL. Runs on the
// redis job queue so a slow or failing endpoint never stalls a polling
// cycle; delivery retries ride the queue's retry/DLQ machinery.
type WebhookJob struct {
	url    string
	client *xhttp.Client
}

// NewWebhookJob creates the job.
func NewWebhookJob(url string, client *xhttp.Client) *WebhookJob {
	return &WebhookJob{url: url, client: client}
}

func (j *WebhookJob) Name() string { return "alert_webhook" }

func (j *WebhookJob) Type() string { return MsgTypeAlert }

func (j *WebhookJob) Handle(ctx context.Context, payload interface{}) error {
	rec, err := queue.ParsePayload[models.AnomalyRecord](payload)
	if err != nil {
		return fmt.Errorf("webhook payload: %w", err)
	}
	return j.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    j.url,
		Body:   rec,
	}, nil)
}

var _ queue.Job = (*WebhookJob)(nil)

// QueueNotifier enqueues alerts for webhook delivery.
type QueueNotifier struct {
	q *queue.RedisQueue
}

// NewQueueNotifier creates the notifier over the shared queue.
func NewQueueNotifier(q *queue.RedisQueue) *QueueNotifier {
	return &QueueNotifier{q: q}
}

func (n *QueueNotifier) Notify(ctx context.Context, a *models.AnomalyRecord) error {
	return n.q.Enqueue(ctx, MsgTypeAlert, a)
}
