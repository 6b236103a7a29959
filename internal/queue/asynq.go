package queue

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

// RecordTask is the task type of every published record.
const RecordTask = "record:submit"

// AsynqBroker publishes messages as asynq tasks on Redis. The queue name of a
// message becomes the asynq queue.
type AsynqBroker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewAsynqBroker connects to Redis at opt.
func NewAsynqBroker(opt asynq.RedisClientOpt) *AsynqBroker {
	return &AsynqBroker{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// SendToQueue enqueues msg. Records of bulk jobs carry a task id derived from
// their blob sequence, so publishing the same record twice is rejected by
// Redis and treated as success.
func (b *AsynqBroker) SendToQueue(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	opts := []asynq.Option{asynq.Queue(msg.Queue), asynq.MaxRetry(0)}
	if id := taskID(msg); id != "" {
		opts = append(opts, asynq.TaskID(id))
	}
	_, err = b.client.EnqueueContext(ctx, asynq.NewTask(RecordTask, data), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return errors.Wrapf(err, "enqueue %s to %s", msg.CorrelationID, msg.Queue)
}

// RemoveQueue deletes the queue with all of its tasks.
func (b *AsynqBroker) RemoveQueue(_ context.Context, name string) error {
	err := b.inspector.DeleteQueue(name, true)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return errors.Wrapf(err, "delete queue %s", name)
}

// Close releases the Redis connections.
func (b *AsynqBroker) Close() error {
	err := b.client.Close()
	if ierr := b.inspector.Close(); err == nil {
		err = ierr
	}
	return err
}

func taskID(msg Message) string {
	if msg.Headers.RecordMetadata == nil {
		return ""
	}
	return msg.CorrelationID + ":" + strconv.Itoa(msg.Headers.RecordMetadata.BlobSequence)
}
