package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pais-staff/mediaflow/internal/model"
)

// ErrNotFound is returned when a record does not exist or has expired
var ErrNotFound = errors.New("record not found")

const taskIndexKey = "tasks:index"

// maxTxRetries bounds optimistic transaction retries under contention
const maxTxRetries = 20

func taskKey(id string) string { return fmt.Sprintf("task:%s", id) }
func versionsKey(id string) string { return fmt.Sprintf("task:%s:versions", id) }
func versionSeqKey(id string) string { return fmt.Sprintf("task:%s:version_seq", id) }
func taskMediaKey(id string) string { return fmt.Sprintf("task:%s:media", id) }
func mediaKey(id string) string { return fmt.Sprintf("media:%s", id) }

// Store keeps tasks, their versions and their media records in Redis.
// Every key expires after ttl.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func New(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{redis: redisClient, ttl: ttl}
}

// SaveTask creates or replaces a task and indexes it by creation time
func (s *Store) SaveTask(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, s.ttl)
		pipe.ZAdd(ctx, taskIndexKey, redis.Z{
			Score:  float64(task.CreatedAt.UnixNano()),
			Member: task.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	data, err := s.redis.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// UpdateTask loads a task, applies fn and saves it back. The read and the
// write run under WATCH, so concurrent updates retry instead of overwriting
// each other; fn may therefore run more than once.
func (s *Store) UpdateTask(ctx context.Context, id string, fn func(t *model.Task)) (*model.Task, error) {
	key := taskKey(id)
	var task *model.Task

	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load task: %w", err)
		}

		task = &model.Task{}
		if err := json.Unmarshal(data, task); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		fn(task)
		task.UpdatedAt = time.Now()

		out, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// watch runs fn in an optimistic transaction on key, retrying when another
// client modified key in between
func (s *Store) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.redis.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update %s: transaction kept conflicting", key)
}

// ListTasks returns up to limit tasks, newest first. Expired tasks are
// dropped from the index as they are found.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.redis.ZRevRange(ctx, taskIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task index: %w", err)
	}

	tasks := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.redis.ZRem(ctx, taskIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// AddVersion appends a content revision with the next version number
func (s *Store) AddVersion(ctx context.Context, v *model.TaskVersion) error {
	seq, err := s.redis.Incr(ctx, versionSeqKey(v.TaskID)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate version: %w", err)
	}
	v.Version = int(seq)
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal version: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, versionsKey(v.TaskID), data)
		pipe.Expire(ctx, versionsKey(v.TaskID), s.ttl)
		pipe.Expire(ctx, versionSeqKey(v.TaskID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save version: %w", err)
	}
	return nil
}

// ListVersions returns every revision of a task, oldest first
func (s *Store) ListVersions(ctx context.Context, taskID string) ([]*model.TaskVersion, error) {
	raw, err := s.redis.LRange(ctx, versionsKey(taskID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}

	versions := make([]*model.TaskVersion, 0, len(raw))
	for _, item := range raw {
		var v model.TaskVersion
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, nil
}

// CreateMedia stores a new media record and links it to its task
func (s *Store) CreateMedia(ctx context.Context, job *model.MediaJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal media record: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, mediaKey(job.ID), data, s.ttl)
		pipe.RPush(ctx, taskMediaKey(job.TaskID), job.ID)
		pipe.Expire(ctx, taskMediaKey(job.TaskID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create media record: %w", err)
	}
	return nil
}

func (s *Store) GetMedia(ctx context.Context, id string) (*model.MediaJob, error) {
	data, err := s.redis.Get(ctx, mediaKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load media record: %w", err)
	}

	var job model.MediaJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal media record: %w", err)
	}
	return &job, nil
}

// UpdateMedia loads a media record, applies fn and saves it back.
// Terminal records are returned unchanged.
func (s *Store) UpdateMedia(ctx context.Context, id string, fn func(j *model.MediaJob)) (*model.MediaJob, error) {
	key := mediaKey(id)
	var job *model.MediaJob

	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load media record: %w", err)
		}

		job = &model.MediaJob{}
		if err := json.Unmarshal(data, job); err != nil {
			return fmt.Errorf("failed to unmarshal media record: %w", err)
		}
		if job.Status.Terminal() {
			return nil
		}

		fn(job)
		now := time.Now()
		job.UpdatedAt = &now

		out, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal media record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListMedia returns the media records of a task in creation order
func (s *Store) ListMedia(ctx context.Context, taskID string) ([]*model.MediaJob, error) {
	ids, err := s.redis.LRange(ctx, taskMediaKey(taskID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read media index: %w", err)
	}

	jobs := make([]*model.MediaJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetMedia(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// LatestCompleted returns the newest completed record of kind for a task
func (s *Store) LatestCompleted(ctx context.Context, taskID string, kind model.MediaKind) (*model.MediaJob, error) {
	jobs, err := s.ListMedia(ctx, taskID)
	if err != nil {
		return nil, err
	}
	for i := len(jobs) - 1; i >= 0; i-- {
		if jobs[i].Kind == kind && jobs[i].Status == model.MediaStatusCompleted && jobs[i].FilePath != "" {
			return jobs[i], nil
		}
	}
	return nil, ErrNotFound
}
