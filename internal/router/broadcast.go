package router

import (
	"context"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/message"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/registry"
)

// codeOK is the status code carried by broadcast variant control replies.
const codeOK = 1

// Status is the payload of a "get" broadcast.
type Status struct {
	Count int64 `json:"count"`
	Mute  bool  `json:"mute"`
}

func (r *Router) dispatchBroadcast(ctx context.Context, conn registry.Conn, msg message.Message) error {
	switch msg.Type {
	case message.TypeRegister:
		reply := message.New(message.TypeRegister)
		reply.ID = msg.ID
		reply.Code = codeOK
		r.reply(ctx, conn, reply)
		return nil

	case message.TypeOffer, message.TypeAnswer, message.TypeCandidate:
		if err := validatePayload(msg); err != nil {
			return err
		}
		r.toOthers(ctx, msg.From, func() message.Message {
			out := message.New(msg.Type)
			out.ID = msg.ID
			out.From = msg.From
			out.GroupID = msg.GroupID
			out.SDP = msg.SDP
			out.Candidate = msg.Candidate
			return out
		})
		return nil

	case message.TypeCall:
		r.toOthers(ctx, msg.From, func() message.Message {
			out := message.New(message.TypeInCall)
			out.From = msg.From
			out.GroupID = msg.GroupID
			return out
		})
		return nil

	case message.TypeMute:
		muted := r.toggleMute()
		out := message.New(message.TypeMute)
		out.ID = msg.ID
		out.From = msg.From
		out.Code = codeOK
		out.Value = mustJSON(muted)
		r.toAll(ctx, out)
		return nil

	case message.TypeGet:
		out := message.New(message.TypeGet)
		out.ID = msg.ID
		out.Code = codeOK
		out.Value = mustJSON(Status{Count: r.onlineCount(), Mute: r.mute.Load()})
		r.toAll(ctx, out)
		return nil

	case message.TypeAudioFile:
		r.toOthers(ctx, msg.From, func() message.Message {
			out := message.New(message.TypeAudioFile)
			out.From = msg.From
			out.Value = msg.Value
			return out
		})
		return nil

	default:
		r.ignore(msg)
		return nil
	}
}

// toggleMute flips the mute flag and returns the new value. Concurrent toggles
// are never lost.
func (r *Router) toggleMute() bool {
	for {
		cur := r.mute.Load()
		if r.mute.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

func (r *Router) onlineCount() int64 {
	if r.online != nil {
		return r.online.OnlineCount()
	}
	return int64(r.reg.Size())
}

// toOthers sends one message to every registered identity except from.
func (r *Router) toOthers(ctx context.Context, from string, build func() message.Message) {
	data := message.MustEncode(build())
	for _, id := range r.reg.Identities() {
		if id == from {
			continue
		}
		r.deliver(ctx, id, data)
	}
}

// toAll sends msg to every registered identity, the sender included.
func (r *Router) toAll(ctx context.Context, msg message.Message) {
	data := message.MustEncode(msg)
	for _, id := range r.reg.Identities() {
		r.deliver(ctx, id, data)
	}
}
