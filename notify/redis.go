package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quartzite/quartzite/job"
)

// Compile-time interface check.
var _ Notifier = (*RedisNotifier)(nil)

// channelPrefix namespaces quartzite events on a shared Redis.
const channelPrefix = "quartzite:"

// RedisChannel returns the Redis channel for a specific job.
func RedisChannel(jobID uuid.UUID) string {
	return channelPrefix + JobTopic(jobID)
}

// RedisChannelAll is the Redis channel carrying every job event.
const RedisChannelAll = channelPrefix + TopicAll

// RedisNotifier fans job events out across processes via Redis PubSub.
// Publishing is fire-and-forget: a Redis outage is logged and the event
// dropped, matching the best-effort notifier contract. The caller owns
// the Redis client lifecycle.
type RedisNotifier struct {
	client redis.UniversalClient
	codec  Codec
	logger *slog.Logger
}

// RedisOption configures a RedisNotifier.
type RedisOption func(*RedisNotifier)

// WithRedisCodec overrides the wire codec (default msgpack).
func WithRedisCodec(c Codec) RedisOption {
	return func(n *RedisNotifier) { n.codec = c }
}

// WithRedisLogger sets a custom logger.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(n *RedisNotifier) { n.logger = l }
}

// NewRedisNotifier creates a notifier publishing to Redis channels.
func NewRedisNotifier(client redis.UniversalClient, opts ...RedisOption) *RedisNotifier {
	n := &RedisNotifier{
		client: client,
		codec:  &MsgpackCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// publish encodes the event and publishes it to the job's channel and
// the global channel. Errors are logged, never returned.
func (n *RedisNotifier) publish(ctx context.Context, evt *Event) {
	data, err := n.codec.Encode(evt)
	if err != nil {
		n.logger.Warn("encode event failed",
			slog.String("job_id", evt.JobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, channel := range []string{RedisChannel(evt.JobID), RedisChannelAll} {
		if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
			n.logger.Warn("redis publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
}

// NotifyStatus implements Notifier.
func (n *RedisNotifier) NotifyStatus(ctx context.Context, j *job.Job) {
	n.publish(ctx, &Event{
		Kind:    KindStatus,
		JobID:   j.ID,
		JobType: j.Type,
		Status:  j.Status,
		At:      time.Now().UTC(),
	})
}

// NotifyFailed implements Notifier.
func (n *RedisNotifier) NotifyFailed(ctx context.Context, j *job.Job, errMsg string) {
	n.publish(ctx, &Event{
		Kind:    KindStatus,
		JobID:   j.ID,
		JobType: j.Type,
		Status:  j.Status,
		Error:   errMsg,
		At:      time.Now().UTC(),
	})
}

// NotifyProgress implements Notifier.
func (n *RedisNotifier) NotifyProgress(ctx context.Context, jobID uuid.UUID, percent int) {
	n.publish(ctx, &Event{
		Kind:     KindProgress,
		JobID:    jobID,
		Progress: percent,
		At:       time.Now().UTC(),
	})
}

// NotifyReportGenerated implements Notifier.
func (n *RedisNotifier) NotifyReportGenerated(ctx context.Context, jobID, reportID uuid.UUID) {
	n.publish(ctx, &Event{
		Kind:     KindReportGenerated,
		JobID:    jobID,
		ReportID: reportID,
		At:       time.Now().UTC(),
	})
}

// Relay subscribes to the global Redis channel and republishes every
// received event on the local broker, bridging events published by
// other processes to this process's subscribers. It blocks until ctx is
// cancelled.
func (n *RedisNotifier) Relay(ctx context.Context, b *Broker) error {
	sub := n.client.Subscribe(ctx, RedisChannelAll)
	defer sub.Close() //nolint:errcheck // shutting down

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := n.codec.Decode([]byte(msg.Payload))
			if err != nil {
				n.logger.Warn("decode relayed event failed",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			b.Publish(evt)
		}
	}
}
