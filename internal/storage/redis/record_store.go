package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/goodtune/ontime/internal/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "ontime:"

var saveRecordLua = redis.NewScript(saveRecordScript)

type recordStore struct {
	client *redis.Client
	prefix string
}

func (s *recordStore) recordKey(key string) string {
	return fmt.Sprintf("%susage:%s", s.prefix, key)
}

func (s *recordStore) indexKey() string {
	return s.prefix + "usage:keys"
}

// Load retrieves the record stored under key
func (s *recordStore) Load(ctx context.Context, key string) (*storage.UsageRecord, error) {
	data, err := s.client.HGetAll(ctx, s.recordKey(key)).Result()
	if err != nil {
		return nil, err
	}

	return parseUsageRecord(data)
}

// Save atomically replaces the record stored under key
func (s *recordStore) Save(ctx context.Context, key string, record storage.UsageRecord) error {
	fields := record.Fields()

	keys := []string{s.recordKey(key), s.indexKey()}
	args := []interface{}{
		key,
		fields[storage.FieldLastResetAt],
		fields[storage.FieldLastUpdateAt],
		fields[storage.FieldAccumulatedSeconds],
	}

	return saveRecordLua.Run(ctx, s.client, keys, args...).Err()
}

// Delete removes the record and its index entry
func (s *recordStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(key))
		pipe.SRem(ctx, s.indexKey(), key)
		return nil
	})
	return err
}

// Keys lists every key with a saved record
func (s *recordStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
