// Package worker moves uploaded objects from the queue into the processor.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/queue"
	"rollcall/internal/upload"
)

// Job is the body of an upload message.
type Job struct {
	ID string `json:"id"`
	upload.ObjectRef
}

// Processor handles one uploaded object.
type Processor interface {
	Process(ctx context.Context, ref upload.ObjectRef) (attendance.Report, error)
}

// Enqueue publishes one upload message per object and returns the job ids.
func Enqueue(ctx context.Context, q queue.Queue, refs []upload.ObjectRef) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		job := Job{ID: uuid.NewString(), ObjectRef: ref}
		body, err := json.Marshal(job)
		if err != nil {
			return ids, err
		}
		msg := queue.Message{Type: queue.TypeUpload, Key: ref.Bucket + "/" + ref.Key, Body: body}
		if err := q.Publish(ctx, msg); err != nil {
			return ids, fmt.Errorf("enqueue %s: %w", ref.Key, err)
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Run consumes upload messages until ctx is done or the queue closes.
// Failed objects are logged and not retried.
func Run(ctx context.Context, q queue.Queue, p Processor, logger *zap.Logger) error {
	log := logger.Named("worker")
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info("worker started")
	for msg := range messages {
		if msg.Type != queue.TypeUpload {
			log.Warn("ignoring message", zap.String("type", msg.Type))
			continue
		}
		var job Job
		if err := json.Unmarshal(msg.Body, &job); err != nil || job.Key == "" {
			log.Error("decode upload job failed", zap.ByteString("body", msg.Body), zap.Error(err))
			continue
		}
		handle(ctx, p, job, log)
	}
	log.Info("worker stopped")
	return nil
}

func handle(ctx context.Context, p Processor, job Job, log *zap.Logger) {
	log = log.With(zap.String("job_id", job.ID), zap.String("object_key", job.Key))
	rep, err := p.Process(ctx, job.ObjectRef)

	var partial *attendance.PartialBatchError
	switch {
	case errors.Is(err, upload.ErrUnsupportedFormat):
		return
	case errors.As(err, &partial):
		log.Warn("upload partially reconciled",
			zap.Int("written", rep.Written),
			zap.Int("failed", partial.Failed),
			zap.Int("attempted", partial.Attempted),
		)
	case err != nil:
		log.Error("upload processing failed", zap.Error(err))
	default:
		log.Info("upload reconciled",
			zap.String("date", rep.Date),
			zap.String("session", rep.Session),
			zap.Int("roster_rows", rep.RosterRows),
			zap.Int("written", rep.Written),
			zap.Int("skipped", rep.Skipped),
		)
	}
}
