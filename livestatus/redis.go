package livestatus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis key layout:
// starwatch:live:{platform}:{uid}   HASH
//   - status:     "1" | "0"
//   - start_time: unix seconds
//   - end_time:   unix seconds
const (
	fieldStatus    = "status"
	fieldStartTime = "start_time"
	fieldEndTime   = "end_time"
)

// RedisStore persists records as Redis hashes.
type RedisStore struct {
	client   redis.UniversalClient
	platform string
}

// NewRedisStore returns a store scoped to platform. The caller owns client.
func NewRedisStore(client redis.UniversalClient, platform string) *RedisStore {
	return &RedisStore{client: client, platform: platform}
}

func (s *RedisStore) key(uid int64) string {
	return fmt.Sprintf("starwatch:live:%s:%d", s.platform, uid)
}

func (s *RedisStore) Get(ctx context.Context, uid int64) (Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(uid)).Result()
	if err != nil {
		return Record{}, false, err
	}
	return recordFromHash(uid, fields)
}

func statusValue(live bool) string {
	if live {
		return "1"
	}
	return "0"
}

func (s *RedisStore) SetStatus(ctx context.Context, uid int64, live bool) error {
	return s.client.HSet(ctx, s.key(uid), fieldStatus, statusValue(live)).Err()
}

func (s *RedisStore) SetStartTime(ctx context.Context, uid int64, t int64) error {
	return s.client.HSet(ctx, s.key(uid), fieldStartTime, strconv.FormatInt(t, 10)).Err()
}

func (s *RedisStore) SetEndTime(ctx context.Context, uid int64, t int64) error {
	return s.client.HSet(ctx, s.key(uid), fieldEndTime, strconv.FormatInt(t, 10)).Err()
}

func (s *RedisStore) DeleteEndTime(ctx context.Context, uid int64) error {
	return s.client.HDel(ctx, s.key(uid), fieldEndTime).Err()
}

func (s *RedisStore) Reset(ctx context.Context, uid int64) error {
	return s.client.HDel(ctx, s.key(uid), fieldStartTime, fieldEndTime).Err()
}

// Apply queues ops in a MULTI/EXEC block. Nothing is sent when an op is
// rejected.
func (s *RedisStore) Apply(ctx context.Context, uid int64, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	key := s.key(uid)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case OpSetStatus:
				pipe.HSet(ctx, key, fieldStatus, statusValue(op.Live))
			case OpSetStartTime:
				pipe.HSet(ctx, key, fieldStartTime, strconv.FormatInt(op.Time, 10))
			case OpDeleteEndTime:
				pipe.HDel(ctx, key, fieldEndTime)
			case OpReset:
				pipe.HDel(ctx, key, fieldStartTime, fieldEndTime)
			default:
				return unknownOp(uid, op.Kind)
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) All(ctx context.Context) ([]Record, error) {
	prefix := fmt.Sprintf("starwatch:live:%s:", s.platform)
	var out []Record
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		uid, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			continue
		}
		rec, found, err := s.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func recordFromHash(uid int64, fields map[string]string) (Record, bool, error) {
	status, ok := fields[fieldStatus]
	if !ok {
		return Record{}, false, nil
	}
	rec := Record{UID: uid, Live: status == "1"}
	var errs []error
	if v, ok := fields[fieldStartTime]; ok {
		t, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("start_time: %w", err))
		} else {
			rec.StartTime = int64p(t)
		}
	}
	if v, ok := fields[fieldEndTime]; ok {
		t, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("end_time: %w", err))
		} else {
			rec.EndTime = int64p(t)
		}
	}
	if len(errs) > 0 {
		return Record{}, false, fmt.Errorf("corrupt live status uid=%d: %w", uid, errors.Join(errs...))
	}
	return rec, true, nil
}
