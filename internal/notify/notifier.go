package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
	"github.com/angelmondragon/restock-pipeline/pkg/logger"
	"github.com/angelmondragon/restock-pipeline/pkg/pubsub"
	"github.com/google/uuid"
)

const (
	EventTypeBatchUploaded = "replenishment.batch_uploaded"

	defaultPublishTimeout = 15 * time.Second
)

// Notifier announces uploaded supplier batches.
type Notifier interface {
	BatchesUploaded(ctx context.Context, date string, locations []string) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) BatchesUploaded(context.Context, string, []string) error { return nil }

// BatchUploaded is the message body for one supplier file.
type BatchUploaded struct {
	Version    int       `json:"version"`
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	Date       string    `json:"date"`
	Location   string    `json:"location"`
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes one message per batch file and waits for every
// publish to settle.
type PubSubNotifier struct {
	pub     publisher
	timeout time.Duration
	logg    *logger.Logger
	now     func() time.Time
}

// NewPubSubNotifier publishes on the client's batch topic.
func NewPubSubNotifier(client *pubsub.Client, timeout time.Duration, logg *logger.Logger) (*PubSubNotifier, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	p := client.BatchPublisher()
	if p == nil {
		return nil, errors.New("batch publisher not configured")
	}
	return newPubSubNotifier(&gcpPublisher{Publisher: p}, timeout, logg), nil
}

func newPubSubNotifier(pub publisher, timeout time.Duration, logg *logger.Logger) *PubSubNotifier {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &PubSubNotifier{pub: pub, timeout: timeout, logg: logg, now: time.Now}
}

func (n *PubSubNotifier) BatchesUploaded(ctx context.Context, date string, locations []string) error {
	if len(locations) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	results := make([]publishResult, 0, len(locations))
	for _, loc := range locations {
		msg, err := n.message(date, loc)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode batch notification")
		}
		results = append(results, n.pub.Publish(ctx, msg))
	}

	var failed error
	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish batch notification").
				WithDetails(map[string]any{
					"date":      date,
					"location":  locations[i],
					"transient": pubsub.IsRetryable(err),
				})
			break
		}
	}
	if failed != nil {
		return failed
	}

	n.logg.Info(n.logg.WithField(ctx, "messages", len(results)), "batch notifications published")
	return nil
}

func (n *PubSubNotifier) message(date, location string) (*gcppubsub.Message, error) {
	body := BatchUploaded{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: n.now().UTC(),
		Date:       date,
		Location:   location,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", location, err)
	}
	return &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":   body.EventID,
			"event_type": EventTypeBatchUploaded,
			"date":       date,
		},
	}, nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
