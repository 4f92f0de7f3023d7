// Package membership stores which users belong to which call groups.
//
// The router depends only on Provider. Two implementations are provided: an
// in-process Memory store and a KVStore persisted in a NATS JetStream
// key-value bucket so memberships survive restarts.
package membership

import (
	"context"
	"errors"
	"sort"
)

var ErrInvalidID = errors.New("membership: empty group or user id")

// Provider answers group membership queries. Reads return sorted, duplicate
// free slices; writes are idempotent. Implementations must be safe for
// concurrent use.
type Provider interface {
	GroupsOf(ctx context.Context, userID string) ([]string, error)
	UsersOf(ctx context.Context, groupID string) ([]string, error)

	// EnsureGroup creates groupID if it does not exist.
	EnsureGroup(ctx context.Context, groupID string) error

	// AddMembership records (groupID, userID), creating the group if needed.
	AddMembership(ctx context.Context, groupID, userID string) error
}

// UserRecorder is implemented by providers that keep an index of known users
// independent of group memberships.
type UserRecorder interface {
	EnsureUser(ctx context.Context, userID string) error
}

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// insertSorted adds v to the sorted slice xs if absent. The second result
// reports whether xs changed.
func insertSorted(xs []string, v string) ([]string, bool) {
	i := sort.SearchStrings(xs, v)
	if i < len(xs) && xs[i] == v {
		return xs, false
	}
	xs = append(xs, "")
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs, true
}
