// Package redisstore implements the shared Session Store on redis so
// multiple orchestrator instances agree on session state. Session
// records are JSON documents with per-key expiry; the transition guard
// is an optimistic WATCH transaction retried a bounded number of times.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

const (
	sessionKeyPrefix    = "examhub:session:"
	marksKeyPrefix      = "examhub:marks:"
	violationsKeyPrefix = "examhub:violations:"
	lastChangeKeyPrefix = "examhub:lastchange:"
)

type store struct {
	rdb       *redis.Client
	txRetries int
	ttl       time.Duration
}

// NewStore wraps a redis client. ttl bounds the lifetime of every key
// written for a session; txRetries bounds the optimistic CAS loop.
func NewStore(rdb *redis.Client, txRetries int, ttl time.Duration) interfaces.SessionStore {
	return &store{rdb: rdb, txRetries: txRetries, ttl: ttl}
}

func sessionKey(examID string) string    { return sessionKeyPrefix + examID }
func marksKey(examID string) string      { return marksKeyPrefix + examID }
func lastChangeKey(examID string) string { return lastChangeKeyPrefix + examID }

func violationsKey(examID string, generation uint64) string {
	return fmt.Sprintf("%s%s:%d", violationsKeyPrefix, examID, generation)
}

func (s *store) GetSession(ctx context.Context, examID string) (*types.ExamSession, error) {
	data, err := s.rdb.Get(ctx, sessionKey(examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess types.ExamSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session record for %s: %w", examID, err)
	}
	return &sess, nil
}

func (s *store) CreateSession(ctx context.Context, session *types.ExamSession) error {
	val, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, sessionKey(session.ExamID), val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrSessionExists
	}
	return nil
}

// UpdateSession runs mutate inside a WATCH transaction keyed on the
// session record. Only a concurrent write to the same key triggers a
// retry; guard failures and mutate errors abort immediately so a lost
// CAS race surfaces as exactly one rejected command.
func (s *store) UpdateSession(
	ctx context.Context, examID string, expect []types.ExamStatus,
	mutate func(*types.ExamSession) error,
) (*types.ExamSession, error) {
	key := sessionKey(examID)

	var updated *types.ExamSession
	var err error
	for attempt := 0; attempt < s.txRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return types.ErrSessionNotFound
			}
			if err != nil {
				return err
			}

			var sess types.ExamSession
			if err := json.Unmarshal(data, &sess); err != nil {
				return fmt.Errorf("corrupt session record for %s: %w", examID, err)
			}
			if !statusIn(sess.Status, expect) {
				return types.ErrStatusConflict
			}
			if err := mutate(&sess); err != nil {
				return err
			}

			val, err := json.Marshal(&sess)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, val, s.ttl)
				return nil
			})
			if err == nil {
				updated = &sess
			}
			return err
		}, key)

		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		log.WithFields(log.Fields{"exam": examID, "attempt": attempt + 1}).
			Debug("session CAS conflicted, retrying")
	}
	return nil, err
}

func (s *store) SetStudentMark(ctx context.Context, examID, studentID, mark string) error {
	key := marksKey(examID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, studentID, mark)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *store) GetStudentMark(ctx context.Context, examID, studentID string) (string, error) {
	mark, err := s.rdb.HGet(ctx, marksKey(examID), studentID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return mark, err
}

func (s *store) IncrViolations(
	ctx context.Context, examID string, generation uint64, studentID string,
) (int64, error) {
	key := violationsKey(examID, generation)

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, studentID, 1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *store) GetViolations(
	ctx context.Context, examID string, generation uint64, studentID string,
) (int64, error) {
	count, err := s.rdb.HGet(ctx, violationsKey(examID, generation), studentID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

func (s *store) SetLastChange(ctx context.Context, examID string, t time.Time) error {
	return s.rdb.Set(ctx, lastChangeKey(examID), t.UnixMilli(), s.ttl).Err()
}

func (s *store) LastChange(ctx context.Context, examID string) (time.Time, error) {
	val, err := s.rdb.Get(ctx, lastChangeKey(examID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last-change record for %s: %w", examID, err)
	}
	return time.UnixMilli(ms), nil
}

func (s *store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *store) Close() error {
	return s.rdb.Close()
}

func statusIn(status types.ExamStatus, expect []types.ExamStatus) bool {
	for _, e := range expect {
		if status == e {
			return true
		}
	}
	return false
}
