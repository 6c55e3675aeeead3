package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const defaultStreamMaxLen = 10000

// StreamPublisher appends invitations to a Redis stream consumed by the
// delivery service.
type StreamPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(rdb *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: defaultStreamMaxLen}
}

func (p *StreamPublisher) PublishInvitation(ctx context.Context, msg InvitationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode invitation message")
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      "invitation." + msg.Kind,
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return errors.Wrapf(err, "xadd %s", p.stream)
	}
	return nil
}
