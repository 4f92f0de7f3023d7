// Package router turns inbound signaling messages into replies and forwarded
// deliveries.
//
// The Router keeps no per-message state. Each message is handled against the
// Registry and the membership Provider as they are at that instant; the only
// state it owns is the process-wide mute flag of the broadcast variant.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/membership"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
)

// Variant selects the routing table.
type Variant string

const (
	// VariantGroup routes call setup to the members of a group.
	VariantGroup Variant = "group"
	// VariantBroadcast routes call setup to every other connection and adds
	// the mute/get/audio_file control messages.
	VariantBroadcast Variant = "broadcast"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantGroup, VariantBroadcast:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("invalid relay variant %q (expected %q or %q)", s, VariantGroup, VariantBroadcast)
	}
}

// Counter reports the number of online connections.
type Counter interface {
	OnlineCount() int64
}

type Config struct {
	Registry   *registry.Registry
	Membership membership.Provider

	// Online backs the count in "get" replies. When nil the Registry size is
	// used.
	Online Counter

	Variant Variant
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Router struct {
	reg     *registry.Registry
	members membership.Provider
	online  Counter
	variant Variant
	metrics *metrics.Metrics
	log     *slog.Logger

	mute atomic.Bool
}

func New(cfg Config) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errors.New("router: registry is required")
	}
	variant := cfg.Variant
	if variant == "" {
		variant = VariantGroup
	}
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}
	if variant == VariantGroup && cfg.Membership == nil {
		return nil, errors.New("router: group variant requires a membership provider")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		reg:     cfg.Registry,
		members: cfg.Membership,
		online:  cfg.Online,
		variant: variant,
		metrics: cfg.Metrics,
		log:     log,
	}, nil
}

func (r *Router) Variant() Variant { return r.variant }

// Muted reports the current mute state.
func (r *Router) Muted() bool { return r.mute.Load() }

// Handle decodes one inbound frame from conn, registered as identity, and
// dispatches it. It never panics; failures are answered with a fail reply on
// conn.
func (r *Router) Handle(ctx context.Context, identity string, conn registry.Conn, raw []byte) {
	var id string
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.Inc(metrics.EventPanic)
			r.log.Error("signaling handler panic", "user_id", identity, "panic", rec)
			r.reply(ctx, conn, message.Fail(id, reasonInternal))
		}
	}()

	msg, err := message.Decode(raw)
	if err != nil {
		var decErr *message.DecodeError
		if errors.As(err, &decErr) {
			id = decErr.ID
		}
		r.metrics.Inc(metrics.EventDecodeError)
		r.log.Debug("invalid signaling message", "user_id", identity, "err", err)
		r.reply(ctx, conn, message.Fail(id, reasonInvalidMessage))
		return
	}
	id = msg.ID
	r.Dispatch(ctx, identity, conn, msg)
}

// Dispatch routes a decoded message. From defaults to identity.
func (r *Router) Dispatch(ctx context.Context, identity string, conn registry.Conn, msg message.Message) {
	if msg.From == "" {
		msg.From = identity
	}
	if msg.Type.Known() {
		r.metrics.ObserveMessage(string(msg.Type))
	} else {
		r.metrics.ObserveMessage("unknown")
	}

	var err error
	switch r.variant {
	case VariantBroadcast:
		err = r.dispatchBroadcast(ctx, conn, msg)
	default:
		err = r.dispatchGroup(ctx, conn, msg)
	}
	if err != nil {
		r.replyError(ctx, conn, msg, err)
	}
}

func (r *Router) dispatchGroup(ctx context.Context, conn registry.Conn, msg message.Message) error {
	switch msg.Type {
	case message.TypeRegister:
		return r.register(ctx, conn, msg)
	case message.TypeCreateJoinGroup:
		return r.createJoinGroup(ctx, conn, msg)
	case message.TypeCall:
		return r.call(ctx, conn, msg)
	case message.TypeOffer, message.TypeAnswer, message.TypeCandidate:
		return r.relayToGroup(ctx, conn, msg)
	default:
		r.ignore(msg)
		return nil
	}
}

func (r *Router) register(ctx context.Context, conn registry.Conn, msg message.Message) error {
	groups, err := r.members.GroupsOf(ctx, msg.From)
	if err != nil {
		return &StorageError{Op: "groupsOf", Err: err}
	}
	refs := make([]message.GroupRef, len(groups))
	for i, g := range groups {
		refs[i] = message.GroupRef{GroupID: g}
	}

	reply := message.New(message.TypeRegister)
	reply.ID = msg.ID
	reply.From = msg.From
	reply.Info = &message.Info{ID: msg.From, Groups: refs}
	r.reply(ctx, conn, reply)
	return nil
}

func (r *Router) createJoinGroup(ctx context.Context, conn registry.Conn, msg message.Message) error {
	if msg.GroupID == "" {
		return &ValidationError{Type: msg.Type, Field: "groupId"}
	}
	if err := r.members.EnsureGroup(ctx, msg.GroupID); err != nil {
		return &StorageError{Op: "ensureGroup", Err: err}
	}
	if err := r.members.AddMembership(ctx, msg.GroupID, msg.From); err != nil {
		return &StorageError{Op: "addMembership", Err: err}
	}
	r.log.Info("group joined", "user_id", msg.From, "group_id", msg.GroupID)

	reply := message.New(message.TypeCreateJoinGroup)
	reply.ID = msg.ID
	reply.From = msg.From
	reply.GroupID = msg.GroupID
	r.reply(ctx, conn, reply)
	return nil
}

func (r *Router) call(ctx context.Context, conn registry.Conn, msg message.Message) error {
	if msg.GroupID == "" {
		return &ValidationError{Type: msg.Type, Field: "groupId"}
	}
	others, err := r.others(ctx, msg)
	if err != nil {
		return err
	}

	reply := message.New(message.TypeCall)
	reply.ID = msg.ID
	reply.From = msg.From
	reply.GroupID = msg.GroupID
	reply.GroupUsers = others
	r.reply(ctx, conn, reply)

	r.fanOut(ctx, others, func(to string) message.Message {
		out := message.New(message.TypeInCall)
		out.From = msg.From
		out.To = to
		out.GroupID = msg.GroupID
		return out
	})
	return nil
}

// relayToGroup forwards offer/answer/candidate to the other members of the
// group. A "to" naming one of them narrows delivery to that member.
func (r *Router) relayToGroup(ctx context.Context, conn registry.Conn, msg message.Message) error {
	if msg.GroupID == "" {
		return &ValidationError{Type: msg.Type, Field: "groupId"}
	}
	if err := validatePayload(msg); err != nil {
		return err
	}
	others, err := r.others(ctx, msg)
	if err != nil {
		return err
	}
	if msg.To != "" && contains(others, msg.To) {
		others = []string{msg.To}
	}

	r.fanOut(ctx, others, func(to string) message.Message {
		out := message.New(msg.Type)
		out.ID = msg.ID
		out.From = msg.From
		out.To = to
		out.GroupID = msg.GroupID
		out.SDP = msg.SDP
		out.Candidate = msg.Candidate
		return out
	})
	r.reply(ctx, conn, message.Success(msg.ID))
	return nil
}

func validatePayload(msg message.Message) error {
	switch msg.Type {
	case message.TypeOffer, message.TypeAnswer:
		if msg.SDP == nil {
			return &ValidationError{Type: msg.Type, Field: "sdp"}
		}
	case message.TypeCandidate:
		if msg.Candidate == nil {
			return &ValidationError{Type: msg.Type, Field: "candidate"}
		}
	}
	return nil
}

// others is the group's members minus the sender.
func (r *Router) others(ctx context.Context, msg message.Message) ([]string, error) {
	users, err := r.members.UsersOf(ctx, msg.GroupID)
	if err != nil {
		return nil, &StorageError{Op: "usersOf", Err: err}
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != msg.From {
			out = append(out, u)
		}
	}
	return out, nil
}

// fanOut delivers one message per target. Absent targets are skipped and a
// failed send never stops the remaining deliveries.
func (r *Router) fanOut(ctx context.Context, targets []string, build func(to string) message.Message) int {
	delivered := 0
	for _, to := range targets {
		if r.deliver(ctx, to, message.MustEncode(build(to))) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) deliver(ctx context.Context, to string, data []byte) bool {
	err := r.reg.Deliver(ctx, to, data)
	switch {
	case err == nil:
		r.metrics.ObserveDelivery(metrics.DeliveryOK)
		return true
	case errors.Is(err, registry.ErrNotConnected):
		r.metrics.ObserveDelivery(metrics.DeliveryAbsent)
		r.log.Debug("delivery skipped, target offline", "user_id", to)
	default:
		r.metrics.ObserveDelivery(metrics.DeliveryFailed)
		r.log.Warn("delivery failed", "user_id", to, "err", err)
	}
	return false
}

func (r *Router) reply(ctx context.Context, conn registry.Conn, msg message.Message) {
	if conn == nil {
		return
	}
	if err := conn.Send(ctx, message.MustEncode(msg)); err != nil {
		r.log.Debug("reply failed", "conn_id", conn.ID(), "type", string(msg.Type), "err", err)
	}
}

func (r *Router) replyError(ctx context.Context, conn registry.Conn, msg message.Message, err error) {
	var (
		valErr *ValidationError
		stErr  *StorageError
	)
	switch {
	case errors.As(err, &valErr):
		r.metrics.Inc(metrics.EventInvalid)
		r.log.Debug("invalid signaling message", "user_id", msg.From, "type", string(msg.Type), "err", err)
		r.reply(ctx, conn, message.Fail(msg.ID, valErr.Error()))
	case errors.As(err, &stErr):
		r.metrics.Inc(metrics.EventStorageError)
		r.log.Warn("membership store error", "user_id", msg.From, "group_id", msg.GroupID, "op", stErr.Op, "err", stErr.Err)
		r.reply(ctx, conn, message.Fail(msg.ID, reasonStorage))
	default:
		r.log.Warn("signaling message failed", "user_id", msg.From, "type", string(msg.Type), "err", err)
		r.reply(ctx, conn, message.Fail(msg.ID, reasonInternal))
	}
}

func (r *Router) ignore(msg message.Message) {
	r.log.Debug("ignoring signaling message", "user_id", msg.From, "type", string(msg.Type))
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
