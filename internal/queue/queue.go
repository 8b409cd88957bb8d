// Package queue is an at-least-once job queue on Redis lists. A reserved job
// moves atomically to a processing list and leaves it only when acknowledged
// or requeued, so jobs held by a crashed worker are recovered on restart.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const enqueueChunk = 1000

type Job struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	Attempts int             `json:"attempts"`
}

// NewJob marshals data into a job named name.
func NewJob(name string, data interface{}) (Job, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Job{}, err
	}
	return Job{ID: uuid.NewString(), Name: name, Data: raw}, nil
}

// Reserved is a job taken by a worker. raw is the exact list element, needed
// to remove it from the processing list.
type Reserved struct {
	Job
	raw string
}

type Queue struct {
	rdb        redis.UniversalClient
	pending    string
	processing string
}

func New(rdb redis.UniversalClient, name string) *Queue {
	return &Queue{
		rdb:        rdb,
		pending:    "queue:" + name + ":pending",
		processing: "queue:" + name + ":processing",
	}
}

// EnqueueBulk adds jobs in submission order using one pipelined round trip.
func (q *Queue) EnqueueBulk(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(jobs))
	for _, j := range jobs {
		raw, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		values = append(values, raw)
	}

	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for start := 0; start < len(values); start += enqueueChunk {
			end := min(start+enqueueChunk, len(values))
			pipe.LPush(ctx, q.pending, values[start:end]...)
		}
		return nil
	})
	return err
}

// Reserve blocks up to timeout for the oldest pending job. It returns
// redis.Nil when none arrived.
func (q *Queue) Reserve(ctx context.Context, timeout time.Duration) (*Reserved, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.pending, q.processing, timeout).Result()
	if err != nil {
		return nil, err
	}

	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		// an undecodable element can never succeed, drop it
		q.rdb.LRem(ctx, q.processing, 1, raw)
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &Reserved{Job: j, raw: raw}, nil
}

func (q *Queue) Ack(ctx context.Context, r *Reserved) error {
	return q.rdb.LRem(ctx, q.processing, 1, r.raw).Err()
}

// Requeue puts a job back at the end of the line with its attempt count
// increased.
func (q *Queue) Requeue(ctx context.Context, r *Reserved) error {
	next := r.Job
	next.Attempts++
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, r.raw)
		pipe.LPush(ctx, q.pending, raw)
		return nil
	})
	return err
}

// Recover returns jobs left in the processing list by a previous run to the
// pending list. Call it before starting workers.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.RPopLPush(ctx, q.processing, q.pending).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.pending).Result()
}

func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.processing).Result()
}
