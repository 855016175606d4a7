package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	pkgredis "github.com/prohmpiriya/pitch-booking/pkg/redis"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/claim_jobs.lua
var claimJobsScript string

//go:embed scripts/reap_jobs.lua
var reapJobsScript string

// Script names for caching
const (
	scriptClaimJobs = "claim_jobs"
	scriptReapJobs  = "reap_jobs"
)

// RedisJobQueue implements JobQueue with a pending sorted set scored by fire
// time, a processing sorted set scored by lease deadline, and a payload hash.
type RedisJobQueue struct {
	client     *pkgredis.Client
	pending    string
	processing string
	payloads   string
	visibility time.Duration
}

// NewRedisJobQueue creates a queue rooted at key. Claimed jobs not acknowledged
// within visibility are handed out again.
func NewRedisJobQueue(client *pkgredis.Client, key string, visibility time.Duration) *RedisJobQueue {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &RedisJobQueue{
		client:     client,
		pending:    key,
		processing: key + ":processing",
		payloads:   key + ":payloads",
		visibility: visibility,
	}
}

// LoadScripts loads the queue Lua scripts into Redis
func (q *RedisJobQueue) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptClaimJobs: claimJobsScript,
		scriptReapJobs:  reapJobsScript,
	}

	for name, script := range scripts {
		if _, err := q.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// Enqueue stores the payloads and schedules each job at its FireAt
func (q *RedisJobQueue) Enqueue(ctx context.Context, jobs ...domain.LifecycleJob) error {
	if len(jobs) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "repo.redis.jobs.enqueue")
	defer span.End()

	span.SetAttributes(attribute.Int("count", len(jobs)))

	_, err := q.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			payload, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
			}
			pipe.HSet(ctx, q.payloads, job.ID, payload)
			pipe.ZAdd(ctx, q.pending, redis.Z{Score: score(job.FireAt), Member: job.ID})
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to enqueue jobs: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Claim atomically moves due jobs from pending to processing
func (q *RedisJobQueue) Claim(ctx context.Context, now time.Time, limit int) ([]domain.LifecycleJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.jobs.claim")
	defer span.End()

	keys := []string{q.pending, q.processing, q.payloads}
	args := []any{
		score(now),                   // ARGV[1]: now
		score(now.Add(q.visibility)), // ARGV[2]: lease deadline
		limit,                        // ARGV[3]: limit
	}

	result := q.client.EvalWithFallback(ctx, scriptClaimJobs, claimJobsScript, keys, args...)
	if result.Err() != nil {
		telemetry.RecordError(span, result.Err())
		return nil, fmt.Errorf("failed to execute claim_jobs script: %w", result.Err())
	}

	values, err := result.StringSlice()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}

	jobs := make([]domain.LifecycleJob, 0, len(values))
	for _, v := range values {
		var job domain.LifecycleJob
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		jobs = append(jobs, job)
	}

	span.SetAttributes(attribute.Int("claimed", len(jobs)))
	span.SetStatus(codes.Ok, "")
	return jobs, nil
}

// Ack drops the lease and the payload of a finished job
func (q *RedisJobQueue) Ack(ctx context.Context, jobID string) error {
	_, err := q.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.processing, jobID)
		pipe.HDel(ctx, q.payloads, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", jobID, err)
	}
	return nil
}

// Retry stores the job's updated attempt count and reschedules it
func (q *RedisJobQueue) Retry(ctx context.Context, job domain.LifecycleJob, at time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	_, err = q.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.payloads, job.ID, payload)
		pipe.ZRem(ctx, q.processing, job.ID)
		pipe.ZAdd(ctx, q.pending, redis.Z{Score: score(at), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retry job %s: %w", job.ID, err)
	}
	return nil
}

// Reap returns leases that expired before now to the pending set
func (q *RedisJobQueue) Reap(ctx context.Context, now time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.jobs.reap")
	defer span.End()

	keys := []string{q.pending, q.processing}
	n, err := q.client.EvalWithFallback(ctx, scriptReapJobs, reapJobsScript, keys, score(now)).Int()
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("failed to execute reap_jobs script: %w", err)
	}

	span.SetAttributes(attribute.Int("reaped", n))
	span.SetStatus(codes.Ok, "")
	return n, nil
}

// Len returns the number of pending jobs
func (q *RedisJobQueue) Len(ctx context.Context) (int64, error) {
	return q.client.Client().ZCard(ctx, q.pending).Result()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

var _ JobQueue = (*RedisJobQueue)(nil)
