package membership

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	groupKeyPrefix = "group."
	userKeyPrefix  = "user."

	defaultUpdateAttempts = 8
	defaultRetryBackoff   = 5 * time.Millisecond
)

var ErrMaxRetriesExceeded = errors.New("membership: max retries exceeded")

// KVStore persists memberships in a JetStream key-value bucket.
//
// Each group and each user is one key holding a sorted JSON array: the members
// of the group, or the groups of the user. Writes are compare-and-set on the
// key revision and retried on conflict, so concurrent joins from different
// relay processes are not lost.
type KVStore struct {
	bucket   jetstream.KeyValue
	log      *slog.Logger
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

type KVOption func(*KVStore)

// WithOpTimeout bounds every bucket operation that runs without a caller
// deadline.
func WithOpTimeout(d time.Duration) KVOption {
	return func(s *KVStore) { s.timeout = d }
}

func WithLogger(log *slog.Logger) KVOption {
	return func(s *KVStore) { s.log = log }
}

func NewKVStore(bucket jetstream.KeyValue, opts ...KVOption) *KVStore {
	s := &KVStore{
		bucket:   bucket,
		log:      slog.Default(),
		attempts: defaultUpdateAttempts,
		backoff:  defaultRetryBackoff,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenKVStore binds to bucket, creating it when it does not exist yet.
func OpenKVStore(ctx context.Context, js jetstream.JetStream, bucket string, opts ...KVOption) (*KVStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "signal relay group memberships",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return NewKVStore(kv, opts...), nil
}

func groupKey(id string) string { return groupKeyPrefix + encodeKey(id) }
func userKey(id string) string  { return userKeyPrefix + encodeKey(id) }

// encodeKey maps arbitrary ids onto the bucket's key alphabet.
func encodeKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func (s *KVStore) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	list, _, err := s.read(ctx, userKey(userID))
	return list, err
}

func (s *KVStore) UsersOf(ctx context.Context, groupID string) ([]string, error) {
	if groupID == "" {
		return nil, ErrInvalidID
	}
	list, _, err := s.read(ctx, groupKey(groupID))
	return list, err
}

func (s *KVStore) EnsureGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return ErrInvalidID
	}
	return s.ensureKey(ctx, groupKey(groupID))
}

func (s *KVStore) EnsureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidID
	}
	return s.ensureKey(ctx, userKey(userID))
}

// AddMembership writes the group side first; the user index is derived data
// and a crash between the two writes is repaired by the next join.
func (s *KVStore) AddMembership(ctx context.Context, groupID, userID string) error {
	if groupID == "" || userID == "" {
		return ErrInvalidID
	}
	if err := s.addToList(ctx, groupKey(groupID), userID); err != nil {
		return err
	}
	return s.addToList(ctx, userKey(userID), groupID)
}

func (s *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// read returns the list stored at key and its revision. A missing key is an
// empty list at revision 0.
func (s *KVStore) read(ctx context.Context, key string) ([]string, uint64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return []string{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("kv get %s: %w", key, err)
	}
	list, err := decodeList(entry.Value())
	if err != nil {
		return nil, 0, fmt.Errorf("kv decode %s: %w", key, err)
	}
	return list, entry.Revision(), nil
}

func (s *KVStore) ensureKey(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.bucket.Create(ctx, key, []byte("[]"))
	if err == nil || isConflict(err) {
		return nil
	}
	return fmt.Errorf("kv create %s: %w", key, err)
}

// addToList inserts v into the list at key with optimistic concurrency.
func (s *KVStore) addToList(ctx context.Context, key, v string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for attempt := 1; attempt <= s.attempts; attempt++ {
		list, rev, err := s.read(ctx, key)
		if err != nil {
			return err
		}
		next, changed := insertSorted(list, v)
		if !changed {
			return nil
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}

		if rev == 0 {
			_, err = s.bucket.Create(ctx, key, raw)
		} else {
			_, err = s.bucket.Update(ctx, key, raw, rev)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("kv write %s: %w", key, err)
		}

		s.log.Debug("membership kv conflict, retrying", "key", key, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return fmt.Errorf("kv write %s: %w", key, ErrMaxRetriesExceeded)
}

func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// isConflict reports a failed create on an existing key or a revision
// mismatch on update.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
