package message

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// NonceSize is the length of the per-envelope random nonce.
const NonceSize = 16

// ErrMalformedEnvelope is returned for payloads that are not an envelope with
// exactly one known body.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Body is the payload of an envelope: AboutMe or Message.
type Body interface {
	isBody()
}

// AboutMe announces the sender's display name.
type AboutMe struct {
	From peer.ID `json:"from"`
	Name string  `json:"name"`
}

// Message is one chat line.
type Message struct {
	From peer.ID `json:"from"`
	Text string  `json:"text"`
}

func (AboutMe) isBody() {}
func (Message) isBody() {}

// Envelope is the unit broadcast on a topic. The nonce only exists to make
// identical bodies byte-distinct on the wire.
type Envelope struct {
	Body  Body
	Nonce [NonceSize]byte
}

type wireBody struct {
	AboutMe *AboutMe `json:"AboutMe,omitempty"`
	Message *Message `json:"Message,omitempty"`
}

type wireEnvelope struct {
	Body  wireBody        `json:"body"`
	Nonce [NonceSize]byte `json:"nonce"`
}

// New wraps body in an envelope with a fresh nonce.
func New(body Body) (Envelope, error) {
	env := Envelope{Body: body}
	if _, err := rand.Read(env.Nonce[:]); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}
	return env, nil
}

// Encode wraps body in a new envelope and serialises it.
func Encode(body Body) ([]byte, error) {
	env, err := New(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a received payload. Unknown fields are ignored.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if errors.Is(err, ErrMalformedEnvelope) {
			return Envelope{}, err
		}
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	wire := wireEnvelope{Nonce: e.Nonce}
	switch body := e.Body.(type) {
	case AboutMe:
		wire.Body.AboutMe = &body
	case *AboutMe:
		wire.Body.AboutMe = body
	case Message:
		wire.Body.Message = &body
	case *Message:
		wire.Body.Message = body
	default:
		return nil, fmt.Errorf("%w: unsupported body %T", ErrMalformedEnvelope, e.Body)
	}
	return json.Marshal(wire)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.Body.AboutMe != nil && wire.Body.Message != nil:
		return fmt.Errorf("%w: body carries both AboutMe and Message", ErrMalformedEnvelope)
	case wire.Body.AboutMe != nil:
		e.Body = *wire.Body.AboutMe
	case wire.Body.Message != nil:
		e.Body = *wire.Body.Message
	default:
		return fmt.Errorf("%w: body is neither AboutMe nor Message", ErrMalformedEnvelope)
	}
	e.Nonce = wire.Nonce
	return nil
}
