package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
)

// RedisStore keeps each job as a string key plus sorted-set indexes scored by creation time:
//
//	<prefix>:job:<id>       JSON document
//	<prefix>:jobs           every job id
//	<prefix>:owner:<owner>  job ids of one owner
type RedisStore struct {
	rc     *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStoreFromConfig connects to the configured server
func NewRedisStoreFromConfig(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*RedisStore, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Redis job store initialized",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB))

	return NewRedisStore(rc, cfg.KeyPrefix, logger), nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(rc *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = config.DefaultKeyPrefix
	}
	return &RedisStore{rc: rc, prefix: prefix, logger: logger}
}

func (r *RedisStore) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, id)
}

func (r *RedisStore) allKey() string {
	return r.prefix + ":jobs"
}

func (r *RedisStore) ownerKey(owner string) string {
	return fmt.Sprintf("%s:owner:%s", r.prefix, owner)
}

// Save writes the document and its index entries in one transaction,
// watching the job key so a terminal record is never replaced
func (r *RedisStore) Save(ctx context.Context, j *job.Job) error {
	if err := validateID(j.ID); err != nil {
		return err
	}
	data, err := encode(j)
	if err != nil {
		return err
	}

	key := r.jobKey(j.ID)
	member := redis.Z{Score: float64(j.CreatedAt.UnixNano()), Member: j.ID}

	err = r.rc.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if old, err := decode(current); err == nil && old.IsTerminal() {
				return finished(j.ID, old.Status)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, r.allKey(), member)
			if j.Owner != "" {
				pipe.ZAdd(ctx, r.ownerKey(j.Owner), member)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, job.ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: job %s was written concurrently", job.ErrConflict, j.ID)
	default:
		return fmt.Errorf("redis: failed to save job %s: %w", j.ID, err)
	}
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, id string) (*job.Job, error) {
	data, err := r.rc.Get(ctx, r.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("redis: failed to get job %s: %w", id, err)
	}
	return decode(data)
}

// Delete implements Store
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	j, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.jobKey(id))
		pipe.ZRem(ctx, r.allKey(), id)
		if j.Owner != "" {
			pipe.ZRem(ctx, r.ownerKey(j.Owner), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to delete job %s: %w", id, err)
	}
	return nil
}

// List reads the index newest first and fetches the documents in one MGET
func (r *RedisStore) List(ctx context.Context, owner string) ([]*job.Job, error) {
	index := r.allKey()
	if owner != "" {
		index = r.ownerKey(owner)
	}

	ids, err := r.rc.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to read index %s: %w", index, err)
	}
	out := make([]*job.Job, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
	}
	values, err := r.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to fetch jobs: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// index entry without a document, left by an interrupted delete
			r.logger.Debug("Dangling job index entry", zap.String("job_id", ids[i]))
			continue
		}
		j, err := decode([]byte(s))
		if err != nil {
			r.logger.Warn("Skipping undecodable job", zap.String("job_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, j)
	}

	sortNewestFirst(out)
	return out, nil
}

// Close closes the client
func (r *RedisStore) Close() error {
	return r.rc.Close()
}
