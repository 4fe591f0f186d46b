package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"prodir/internal/publication/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
)

const (
	snapshotKeyPrefix = "snapshot:"
	publishedIndexKey = "snapshots:by_published"
	listBatchSize     = 64
)

// RedisStore keeps each snapshot as a JSON string under snapshot:{id} and
// indexes publication time in a sorted set scored by unix microseconds.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func snapshotKey(id domain.ProfileID) string {
	return snapshotKeyPrefix + id.String()
}

// Put overwrites the snapshot and its index entry in one MULTI block.
func (s *RedisStore) Put(ctx context.Context, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(snap.ID), payload, 0)
		pipe.ZAdd(ctx, publishedIndexKey, redis.Z{
			Score:  float64(snap.PublishedAt.UnixMicro()),
			Member: snap.ID.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.ProfileID) (*models.Snapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *RedisStore) Delete(ctx context.Context, id domain.ProfileID) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, snapshotKey(id))
		pipe.ZRem(ctx, publishedIndexKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if del.Val() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List walks the index from the cursor downwards. Members sharing a score
// come back in reverse lexical order, which is id desc. Index entries whose
// snapshot is already gone are passed over, so a page is only short when
// the index runs out.
func (s *RedisStore) List(ctx context.Context, after *pagination.Cursor, limit int) ([]*models.Snapshot, error) {
	maxScore := "+inf"
	var cursorScore float64
	if after != nil {
		cursorScore = float64(after.At.UnixMicro())
		maxScore = strconv.FormatInt(after.At.UnixMicro(), 10)
	}

	out := make([]*models.Snapshot, 0, limit)
	for offset := int64(0); len(out) < limit; offset += listBatchSize {
		batch, err := s.client.ZRevRangeByScoreWithScores(ctx, publishedIndexKey, &redis.ZRangeBy{
			Max:    maxScore,
			Min:    "-inf",
			Offset: offset,
			Count:  listBatchSize,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("range published index: %w", err)
		}
		keys := make([]string, 0, len(batch))
		for _, z := range batch {
			member, _ := z.Member.(string)
			if after != nil && z.Score == cursorScore && member >= after.ID {
				continue
			}
			keys = append(keys, snapshotKeyPrefix+member)
		}
		snaps, err := s.load(ctx, keys)
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			out = append(out, snap)
			if len(out) == limit {
				break
			}
		}
		if len(batch) < listBatchSize {
			break
		}
	}
	return out, nil
}

// load fetches keys in index order, skipping snapshots removed since the
// index was read.
func (s *RedisStore) load(ctx context.Context, keys []string) ([]*models.Snapshot, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	out := make([]*models.Snapshot, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		snap, err := decodeSnapshot([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func decodeSnapshot(raw []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	for k, v := range snap.Fields {
		if list, ok := v.([]any); ok {
			strs := make([]string, 0, len(list))
			for _, item := range list {
				if s, ok := item.(string); ok {
					strs = append(strs, s)
				}
			}
			snap.Fields[k] = strs
		}
	}
	snap.PublishedAt = snap.PublishedAt.UTC()
	return &snap, nil
}
