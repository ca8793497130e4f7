package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "TaxAdvisor/internal/errors"
)

// RedisStoreConfig 描述 Redis 任务存储的连接参数。
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore 将任务以 JSON 形式保存在 Redis 字符串键中，状态迁移通过 WATCH 乐观锁完成。
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxRetries int
	now        func() time.Time
}

// NewRedisStore 创建 Redis 任务存储。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient 复用已有的 Redis 客户端。
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "taxadvisor:job:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, maxRetries: 5, now: time.Now}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Create 实现 Store 接口，任务 ID 已存在时返回 ErrJobConflict。
func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	now := s.now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	data, err := json.Marshal(job)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
	}
	created, err := s.client.SetNX(ctx, s.key(job.ID), data, s.ttl).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 任务失败")
	}
	if !created {
		return ErrJobConflict
	}
	return nil
}

// Get 读取任务。
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 任务失败")
	}
	return decodeJob(data)
}

// Claim 将任务置为运行中。
func (s *RedisStore) Claim(ctx context.Context, id string) (*Job, error) {
	var claimed *Job
	err := s.update(ctx, id, func(job *Job) error {
		if err := claimTransition(job, s.now().Unix()); err != nil {
			claimed = cloneJob(job)
			return err
		}
		claimed = cloneJob(job)
		return nil
	})
	return claimed, err
}

// MarkSucceeded 记录成功结果。
func (s *RedisStore) MarkSucceeded(ctx context.Context, id string, result AdviceResult) error {
	return s.update(ctx, id, func(job *Job) error {
		succeedTransition(job, result, s.now().Unix())
		return nil
	})
}

// MarkFailed 记录失败原因。
func (s *RedisStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	return s.update(ctx, id, func(job *Job) error {
		failTransition(job, code, lastError, terminal, s.now().Unix())
		return nil
	})
}

// update 在 WATCH 事务内读改写任务，遇到并发修改时重试。
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*Job) error) error {
	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 任务失败")
		}
		job, err := decodeJob(data)
		if err != nil {
			return err
		}
		if err := mutate(job); err != nil {
			return err
		}
		encoded, err := json.Marshal(job)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if _, ok := xerrors.From(err); ok {
				return err
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新 Redis 任务失败")
		}
		return nil
	}
	return xerrors.New(xerrors.CodeStorageFailure, fmt.Sprintf("任务 %s 并发更新冲突", id))
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 Redis 任务失败")
	}
	return &job, nil
}

var _ Store = (*RedisStore)(nil)
