package message

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Type is the signaling message discriminator carried in the "type" field.
//
// Unknown values are preserved verbatim so the router can decide what to do
// with them.
type Type string

const (
	TypeFail            Type = "fail"
	TypeSuccess         Type = "success"
	TypeRegister        Type = "register"
	TypeCreateJoinGroup Type = "create_join_group"
	TypeCall            Type = "call"
	TypeInCall          Type = "in_call"
	TypeJoined          Type = "joined"
	TypeOffer           Type = "offer"
	TypeAnswer          Type = "answer"
	TypeCandidate       Type = "candidate"

	// Broadcast variant only.
	TypeMute      Type = "mute"
	TypeGet       Type = "get"
	TypeAudioFile Type = "audio_file"
)

// Known reports whether t is part of the fixed enumeration.
func (t Type) Known() bool {
	switch t {
	case TypeFail, TypeSuccess, TypeRegister, TypeCreateJoinGroup, TypeCall,
		TypeInCall, TypeJoined, TypeOffer, TypeAnswer, TypeCandidate,
		TypeMute, TypeGet, TypeAudioFile:
		return true
	default:
		return false
	}
}

// Message is the wire envelope exchanged with clients.
//
// Only ID and Type are mandatory. Everything else is optional and is validated
// by the router per message type, not here.
type Message struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	From       string              `json:"from,omitempty"`
	To         string              `json:"to,omitempty"`
	GroupID    string              `json:"groupId,omitempty"`
	SDP        *SessionDescription `json:"sdp,omitempty"`
	Candidate  *Candidate          `json:"candidate,omitempty"`
	Info       *Info               `json:"info,omitempty"`
	GroupUsers []string            `json:"groupUsers"`
	Error      string              `json:"error,omitempty"`

	// Code and Value are used by the broadcast variant's control messages
	// (mute/get/audio_file). Value is forwarded without interpretation.
	Code  int             `json:"code,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// New returns a message of the given type with a fresh correlation id.
func New(t Type) Message {
	return Message{
		ID:         NewID(),
		Type:       t,
		GroupUsers: []string{},
	}
}

// NewID generates a correlation token for server-originated messages.
func NewID() string {
	return uuid.NewString()
}

// Fail builds a failure reply correlated with id. An empty id produces a
// generic failure.
func Fail(id, reason string) Message {
	return Message{
		ID:         id,
		Type:       TypeFail,
		Error:      reason,
		GroupUsers: []string{},
	}
}

// Success builds a success reply correlated with id.
func Success(id string) Message {
	return Message{
		ID:         id,
		Type:       TypeSuccess,
		GroupUsers: []string{},
	}
}

// SessionDescription mirrors RTCSessionDescriptionInit. Both fields are
// opaque to the relay and forwarded exactly as received; a missing type stays
// missing.
type SessionDescription struct {
	Type        SDPType `json:"type,omitempty"`
	Description string  `json:"description"`
}

// ToPion converts the description into pion's representation for Go clients.
func (s SessionDescription) ToPion() webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: s.Type.Pion(),
		SDP:  s.Description,
	}
}

// SessionDescriptionFromPion converts a pion description to the wire form.
func SessionDescriptionFromPion(desc webrtc.SessionDescription) SessionDescription {
	out := SessionDescription{Description: desc.SDP}
	if desc.Type != webrtc.SDPTypeUnknown {
		out.Type = SDPType(desc.Type.String())
	}
	return out
}

// SDPType is the RTCSdpType token as the sender wrote it. Values outside the
// constants below are kept verbatim.
type SDPType string

const (
	SDPTypeOffer    SDPType = "offer"
	SDPTypePranswer SDPType = "pranswer"
	SDPTypeAnswer   SDPType = "answer"
	SDPTypeRollback SDPType = "rollback"
)

// Pion maps t onto pion's enumeration, ignoring case. Unrecognized tokens map
// to webrtc.SDPTypeUnknown.
func (t SDPType) Pion() webrtc.SDPType {
	return webrtc.NewSDPType(strings.ToLower(strings.TrimSpace(string(t))))
}

// Candidate is an ICE candidate as sent by mobile and browser clients.
type Candidate struct {
	SDPMid        *string      `json:"sdpMid,omitempty"`
	SDPMLineIndex *int         `json:"sdpMLineIndex,omitempty"`
	SDP           *string      `json:"sdp,omitempty"`
	ServerURL     *string      `json:"serverUrl,omitempty"`
	AdapterType   *AdapterType `json:"adapterType,omitempty"`
}

// ToPion converts the candidate into pion's ICECandidateInit. Out of range line
// indexes are dropped.
func (c Candidate) ToPion() webrtc.ICECandidateInit {
	init := webrtc.ICECandidateInit{SDPMid: c.SDPMid}
	if c.SDP != nil {
		init.Candidate = *c.SDP
	}
	if c.SDPMLineIndex != nil && *c.SDPMLineIndex >= 0 && *c.SDPMLineIndex <= 0xffff {
		idx := uint16(*c.SDPMLineIndex)
		init.SDPMLineIndex = &idx
	}
	return init
}

// CandidateFromPion converts a pion candidate to the wire form.
func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	c := Candidate{SDPMid: init.SDPMid}
	if init.Candidate != "" {
		sdp := init.Candidate
		c.SDP = &sdp
	}
	if init.SDPMLineIndex != nil {
		idx := int(*init.SDPMLineIndex)
		c.SDPMLineIndex = &idx
	}
	return c
}

// AdapterType is the network adapter class reported by native clients. It is
// forwarded verbatim; the constants list the values current clients send.
type AdapterType string

const (
	AdapterUnknown    AdapterType = "UNKNOWN"
	AdapterEthernet   AdapterType = "ETHERNET"
	AdapterWifi       AdapterType = "WIFI"
	AdapterCellular   AdapterType = "CELLULAR"
	AdapterVPN        AdapterType = "VPN"
	AdapterLoopback   AdapterType = "LOOPBACK"
	AdapterAny        AdapterType = "ADAPTER_TYPE_ANY"
	AdapterCellular2G AdapterType = "CELLULAR_2G"
	AdapterCellular3G AdapterType = "CELLULAR_3G"
	AdapterCellular4G AdapterType = "CELLULAR_4G"
	AdapterCellular5G AdapterType = "CELLULAR_5G"
)

// Info is the payload of a register reply.
type Info struct {
	ID     string     `json:"id,omitempty"`
	Groups []GroupRef `json:"groups"`
}

// GroupRef names one group in a register reply.
type GroupRef struct {
	GroupID string `json:"groupId"`
}
