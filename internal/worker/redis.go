package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"recscribe/internal/models"
	"recscribe/internal/redis"
)

const (
	redisStatusChannel = "worker:status"
	redisStatusPrefix  = "worker:job:"
	redisStatusTTL     = 24 * time.Hour
)

// stateRedis shares job status between instances: every status is written
// under its job key and broadcast on the status channel.
type stateRedis struct {
	client *redis.Client
	// origin tags published messages so an instance skips its own.
	origin string
}

// statusMessage is what travels on the status channel. Removed withdraws a
// job that never made it into the queue.
type statusMessage struct {
	Origin  string           `json:"origin"`
	Removed bool             `json:"removed,omitempty"`
	Status  models.JobStatus `json:"status"`
}

func newStateCache(client *redis.Client) *stateRedis {
	if !client.Enabled() {
		return nil
	}
	return &stateRedis{client: client, origin: uuid.NewString()}
}

// startListener feeds statuses published by other instances to apply and
// withdrawn job ids to drop.
func (r *stateRedis) startListener(ctx context.Context, apply func(models.JobStatus), drop func(id string)) {
	if r == nil || apply == nil {
		return
	}
	pubsub := r.client.Raw().Subscribe(ctx, redisStatusChannel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.receive(msg.Payload, apply, drop)
			}
		}
	}()
}

func (r *stateRedis) receive(payload string, apply func(models.JobStatus), drop func(id string)) {
	var msg statusMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.WithError(err).Warn("job status decode failed")
		return
	}
	if msg.Origin == r.origin {
		return
	}
	if msg.Removed {
		if drop != nil {
			drop(msg.Status.ID)
		}
		return
	}
	apply(msg.Status)
}

func (r *stateRedis) publish(ctx context.Context, msg statusMessage) {
	msg.Origin = r.origin
	payload, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Warn("job status marshal failed")
		return
	}
	if err := r.client.Raw().Publish(ctx, redisStatusChannel, payload).Err(); err != nil {
		log.WithError(err).Warn("job status publish failed")
	}
}

func (r *stateRedis) storeStatus(ctx context.Context, status models.JobStatus) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		log.WithError(err).Warn("job status marshal failed")
		return
	}
	if err := r.client.Set(ctx, redisStatusPrefix+status.ID, payload, redisStatusTTL); err != nil {
		log.WithError(err).Warn("job status store failed")
	}
	r.publish(ctx, statusMessage{Status: status})
}

func (r *stateRedis) loadStatus(ctx context.Context, id string) (models.JobStatus, bool) {
	if r == nil {
		return models.JobStatus{}, false
	}
	raw, err := r.client.Get(ctx, redisStatusPrefix+id)
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.WithError(err).Warn("job status load failed")
		}
		return models.JobStatus{}, false
	}
	var status models.JobStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		log.WithError(err).Warn("job status decode failed")
		return models.JobStatus{}, false
	}
	return status, true
}

func (r *stateRedis) deleteStatus(ctx context.Context, id string) {
	if r == nil {
		return
	}
	_ = r.client.Del(ctx, redisStatusPrefix+id)
	r.publish(ctx, statusMessage{Removed: true, Status: models.JobStatus{ID: id}})
}
