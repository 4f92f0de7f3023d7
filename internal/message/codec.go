package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmpty       = errors.New("message: empty payload")
	ErrMissingType = errors.New("message: missing type")
)

// DecodeError reports a payload that could not be parsed into a Message.
//
// ID carries the correlation id when it could still be recovered from the
// payload, so the failure reply can be matched by the client. It is empty when
// even that was impossible.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return "decode signal message: " + e.Err.Error()
	}
	return fmt.Sprintf("decode signal message %s: %s", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one inbound frame. It never panics: any failure is returned as
// a *DecodeError.
func Decode(raw []byte) (msg Message, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			msg = Message{}
			err = &DecodeError{ID: recoverID(raw), Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if len(bytes.TrimSpace(raw)) == 0 {
		return Message{}, &DecodeError{Err: ErrEmpty}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&msg); err != nil {
		return Message{}, &DecodeError{ID: recoverID(raw), Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, &DecodeError{ID: msg.ID, Err: errors.New("unexpected trailing data")}
	}

	msg.Type = Type(strings.TrimSpace(string(msg.Type)))
	if msg.Type == "" {
		return Message{}, &DecodeError{ID: msg.ID, Err: ErrMissingType}
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.GroupUsers == nil {
		msg.GroupUsers = []string{}
	}
	return msg, nil
}

// recoverID makes a best-effort attempt at extracting the "id" field from a
// payload that failed full decoding.
func recoverID(raw []byte) string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	rawID, ok := probe["id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(rawID, &id); err != nil {
		return ""
	}
	return id
}

// Encode serializes msg for the wire.
//
// Every field Decode accepts is written back as decoded, so Encode does not
// fail for a decoded message or one built by this package's constructors.
func Encode(msg Message) ([]byte, error) {
	if msg.GroupUsers == nil {
		msg.GroupUsers = []string{}
	}
	return json.Marshal(msg)
}

// MustEncode is Encode for messages built by the server itself.
func MustEncode(msg Message) []byte {
	b, err := Encode(msg)
	if err != nil {
		panic(fmt.Sprintf("encode %s message: %v", msg.Type, err))
	}
	return b
}
