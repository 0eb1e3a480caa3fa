package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/cipheragg/internal/accumulation"
	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/paillier"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const (
	fieldTotal     = "total"
	fieldModulus   = "modulus"
	fieldModulusSq = "modulus_sq"
	fieldVersion   = "version"
	fieldRecent    = "recent_contributions"
	fieldUpdatedAt = "updated_at"

	opGet = "RedisAggregate.Get"
	opCAS = "RedisAggregate.CompareAndSwap"
)

// AggregateStore keeps one hash per subject and implements compare-and-swap
// with WATCH/MULTI/EXEC.
type AggregateStore struct {
	rdb    goredis.UniversalClient
	prefix string
	log    *logger.Logger
}

var _ accumulation.Store = (*AggregateStore)(nil)

func NewAggregateStore(rdb goredis.UniversalClient, prefix string, log *logger.Logger) *AggregateStore {
	if log == nil {
		log = logger.NewNop()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cipheragg"
	}
	return &AggregateStore{
		rdb:    rdb,
		prefix: strings.TrimSuffix(prefix, ":"),
		log:    log.With("component", "RedisAggregateStore"),
	}
}

func (s *AggregateStore) key(subject string) string {
	return s.prefix + ":aggregate:" + subject
}

func (s *AggregateStore) Get(ctx context.Context, subject string) (*accumulation.State, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(subject)).Result()
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeStoreUnavailable, opGet, err)
	}
	st, err := decodeState(subject, vals)
	if err != nil {
		s.log.Error("stored aggregate is corrupt", "subject", subject, "error", err)
	}
	return st, err
}

func (s *AggregateStore) CompareAndSwap(ctx context.Context, subject string, expected *accumulation.State, next accumulation.State) (bool, error) {
	if next.Subject != subject {
		return false, domainagg.NewSubjectError(domainagg.CodeInvalidInput, opCAS, subject, "next state belongs to a different subject", nil)
	}
	fields, err := encodeState(next)
	if err != nil {
		return false, err
	}
	key := s.key(subject)

	swapped := false
	err = s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		cur, err := decodeState(subject, vals)
		if err != nil {
			return err
		}
		if !accumulation.SameSnapshot(cur, expected) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, key, fields)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)

	switch {
	case errors.Is(err, goredis.TxFailedErr):
		return false, nil
	case err == nil:
		return swapped, nil
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		return false, err
	}
	return false, domainagg.Wrap(domainagg.CodeStoreUnavailable, opCAS, err)
}

// Delete removes a subject's aggregate. Administrative only.
func (s *AggregateStore) Delete(ctx context.Context, subject string) error {
	return s.rdb.Del(ctx, s.key(subject)).Err()
}

func encodeState(st accumulation.State) (map[string]any, error) {
	recent := st.RecentContributions
	if recent == nil {
		recent = []string{}
	}
	raw, err := json.Marshal(recent)
	if err != nil {
		return nil, domainagg.NewSubjectError(domainagg.CodeInternal, opCAS, st.Subject, "encode recent contributions", err)
	}
	return map[string]any{
		fieldTotal:     st.Total.String(),
		fieldModulus:   st.Modulus.String(),
		fieldModulusSq: st.ModulusSq.String(),
		fieldVersion:   strconv.FormatInt(st.Version, 10),
		fieldRecent:    string(raw),
		fieldUpdatedAt: st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// decodeState returns nil for an empty hash.
func decodeState(subject string, vals map[string]string) (*accumulation.State, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	corrupt := func(field string, err error) error {
		return domainagg.NewSubjectError(domainagg.CodeInvariantViolation, opGet, subject, "stored "+field+" is malformed", err)
	}
	total, err := paillier.ParseNat(vals[fieldTotal])
	if err != nil {
		return nil, corrupt(fieldTotal, err)
	}
	modulus, err := paillier.ParseNat(vals[fieldModulus])
	if err != nil {
		return nil, corrupt(fieldModulus, err)
	}
	modulusSq, err := paillier.ParseNat(vals[fieldModulusSq])
	if err != nil {
		return nil, corrupt(fieldModulusSq, err)
	}
	version, err := strconv.ParseInt(vals[fieldVersion], 10, 64)
	if err != nil {
		return nil, corrupt(fieldVersion, err)
	}
	var recent []string
	if raw := vals[fieldRecent]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &recent); err != nil {
			return nil, corrupt(fieldRecent, err)
		}
	}
	var updated time.Time
	if raw := vals[fieldUpdatedAt]; raw != "" {
		updated, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, corrupt(fieldUpdatedAt, err)
		}
	}
	return &accumulation.State{
		Subject:             subject,
		Total:               total,
		Modulus:             modulus,
		ModulusSq:           modulusSq,
		Version:             version,
		RecentContributions: recent,
		UpdatedAt:           updated,
	}, nil
}
