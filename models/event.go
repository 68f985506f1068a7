package models

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindGenesis      EventKind = "GENESIS"
	KindLogin        EventKind = "LOGIN"
	KindLoginSuccess EventKind = "LOGIN_SUCCESS"
)

// Event is the payload of one audit block. Its fields can only be set through
// the constructors below, so every committed event belongs to the closed set
// of kinds.
type Event struct {
	id      uuid.UUID
	kind    EventKind
	voterID uint64
	aadhar  string // always masked
	at      int64  // client timestamp, Unix nanoseconds
}

// GenesisEvent is the fixed payload of block 0.
func GenesisEvent() Event {
	return Event{kind: KindGenesis}
}

// NewLoginEvent records an OTP issuance for a voter.
func NewLoginEvent(voterID uint64, aadhar string, at time.Time) Event {
	return newEvent(KindLogin, voterID, aadhar, at)
}

// NewLoginSuccessEvent records a successful OTP verification.
func NewLoginSuccessEvent(voterID uint64, aadhar string, at time.Time) Event {
	return newEvent(KindLoginSuccess, voterID, aadhar, at)
}

func newEvent(kind EventKind, voterID uint64, aadhar string, at time.Time) Event {
	return Event{
		id:      uuid.New(),
		kind:    kind,
		voterID: voterID,
		aadhar:  MaskAadhar(aadhar),
		at:      at.UnixNano(),
	}
}

func (e Event) ID() uuid.UUID         { return e.id }
func (e Event) Kind() EventKind       { return e.kind }
func (e Event) VoterID() uint64       { return e.voterID }
func (e Event) MaskedAadhar() string  { return e.aadhar }
func (e Event) ClientTime() time.Time { return time.Unix(0, e.at).UTC() }

// IsAuthEvent reports whether e is one of the kinds callers may append.
func (e Event) IsAuthEvent() bool {
	if e.id == uuid.Nil {
		return false
	}
	return e.kind == KindLogin || e.kind == KindLoginSuccess
}

// Canonical writes the fixed binary form of the event used as digest input.
// Strings are length-prefixed so adjacent fields cannot be shifted into each other.
func (e Event) Canonical(buf *bytes.Buffer) {
	buf.Write(e.id[:])
	writeString(buf, string(e.kind))
	binary.Write(buf, binary.BigEndian, e.voterID)
	writeString(buf, e.aadhar)
	binary.Write(buf, binary.BigEndian, e.at)
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

type eventJSON struct {
	EventID   uuid.UUID `json:"event_id"`
	Action    EventKind `json:"action"`
	VoterID   uint64    `json:"voter_id"`
	Aadhar    string    `json:"aadhar"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		EventID:   e.id,
		Action:    e.kind,
		VoterID:   e.voterID,
		Aadhar:    e.aadhar,
		Timestamp: e.ClientTime(),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Action {
	case KindGenesis, KindLogin, KindLoginSuccess:
	default:
		return fmt.Errorf("unknown event action %q", raw.Action)
	}
	*e = Event{
		id:      raw.EventID,
		kind:    raw.Action,
		voterID: raw.VoterID,
		aadhar:  raw.Aadhar,
		at:      raw.Timestamp.UnixNano(),
	}
	return nil
}

// MaskAadhar keeps only the last four digits: "XXXX XXXX 1234".
func MaskAadhar(aadhar string) string {
	clean := strings.Join(strings.Fields(aadhar), "")
	if len(clean) > 4 {
		clean = clean[len(clean)-4:]
	}
	return "XXXX XXXX " + clean
}

// MaskPhoneNumber keeps only the last five digits: "XXXXX 12345".
func MaskPhoneNumber(phone string) string {
	if len(phone) > 5 {
		phone = phone[len(phone)-5:]
	}
	return "XXXXX " + phone
}
