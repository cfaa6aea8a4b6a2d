package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DeadLetterMessage describes a remote update that could not be applied.
type DeadLetterMessage struct {
	CID      string `json:"cid"`
	Source   string `json:"source"`
	UpdateID string `json:"update_id,omitempty"`

	// Where the update was read from.
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`

	FailureReason string    `json:"failure_reason"`
	FailedAt      time.Time `json:"failed_at"`

	// Update is the original record value.
	Update []byte `json:"update"`
}

// DeadLetter publishes updates the subscriber failed to apply, so they can
// be inspected and replayed.
type DeadLetter struct {
	producer Producer
	topic    string
}

// NewDeadLetter returns a dead letter publisher writing to topic.
func NewDeadLetter(producer Producer, topic string) (*DeadLetter, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &DeadLetter{producer: producer, topic: topic}, nil
}

// Publish records that applying record failed with reason.
func (d *DeadLetter) Publish(ctx context.Context, record *kgo.Record, reason error) error {
	msg := DeadLetterMessage{
		CID:           string(record.Key),
		Source:        headerValue(record, HeaderSource),
		UpdateID:      headerValue(record, HeaderUpdateID),
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		FailureReason: reason.Error(),
		FailedAt:      time.Now().UTC(),
		Update:        record.Value,
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter message: %w", err)
	}

	// Keyed by document id like the update topic.
	dl := &kgo.Record{
		Topic:   d.topic,
		Key:     record.Key,
		Value:   value,
		Headers: record.Headers,
	}
	if err := d.producer.ProduceSync(ctx, dl).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}
	return nil
}
