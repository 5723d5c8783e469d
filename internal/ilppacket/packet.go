// Package ilppacket implements the ASN.1-OER-flavored PREPARE/FULFILL/REJECT
// wire format used by Interledger connectors, plus the well-known F02/F08/R00/T04
// error codes this connector produces.
package ilppacket

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Type is the ILP packet type tag, the first byte of every encoded packet.
type Type byte

const (
	TypePrepare Type = 12
	TypeFulfill Type = 13
	TypeReject  Type = 14
)

const (
	conditionSize    = 32
	fulfillmentSize  = 32
	timestampLayout  = "20060102150405"
	timestampLength  = 17 // 14-digit date/time + 3-digit millis
)

// Well-known ILP error codes this connector produces.
const (
	CodeUnreachable         = "F02"
	CodeAmountTooLarge      = "F08"
	CodeTimeout             = "R00"
	CodeInsufficientLiquidity = "T04"
)

// Prepare is an ILP PREPARE packet.
type Prepare struct {
	Amount              uint64
	ExpiresAt           time.Time
	ExecutionCondition  [conditionSize]byte
	Destination         string
	Data                []byte
}

// Fulfill is an ILP FULFILL packet.
type Fulfill struct {
	Fulfillment [fulfillmentSize]byte
	Data        []byte
}

// Reject is an ILP REJECT packet, doubling as this connector's error
// representation (there is no separate wire type for "ERROR": every failure
// surfaced on the ilp sub-protocol is encoded as a REJECT).
type Reject struct {
	Code        string
	TriggeredBy string
	Message     string
	Data        []byte
}

// encodeTimestamp renders t as ILP's 17-byte ASCII timestamp (YYYYMMDDHHMMSSmmm).
func encodeTimestamp(t time.Time) []byte {
	s := t.UTC().Format(timestampLayout) + fmt.Sprintf("%03d", t.UTC().Nanosecond()/1_000_000)
	return []byte(s)
}

func decodeTimestamp(b []byte) (time.Time, error) {
	if len(b) != timestampLength {
		return time.Time{}, fmt.Errorf("ilppacket: timestamp must be %d bytes, got %d", timestampLength, len(b))
	}
	t, err := time.Parse(timestampLayout, string(b[:len(timestampLayout)]))
	if err != nil {
		return time.Time{}, fmt.Errorf("ilppacket: parse timestamp %q: %w", b, err)
	}
	millis, err := strconv.ParseUint(string(b[len(timestampLayout):]), 10, 16)
	if err != nil {
		return time.Time{}, fmt.Errorf("ilppacket: parse timestamp millis %q: %w", b, err)
	}
	return t.Add(time.Duration(millis) * time.Millisecond), nil
}

// EncodePrepare serializes p into its OER wire format.
func EncodePrepare(p Prepare) []byte {
	var body bytes.Buffer
	var amt [8]byte
	putUint64(amt[:], p.Amount)
	body.Write(amt[:])
	body.Write(encodeTimestamp(p.ExpiresAt))
	body.Write(p.ExecutionCondition[:])
	writeLengthPrefixed(&body, []byte(p.Destination))
	writeLengthPrefixed(&body, p.Data)

	return envelope(TypePrepare, body.Bytes())
}

// DecodePrepare parses a PREPARE packet's body (the bytes after the type tag
// and outer length prefix).
func DecodePrepare(body []byte) (Prepare, error) {
	r := bytes.NewReader(body)
	var amtBuf [8]byte
	if _, err := io.ReadFull(r, amtBuf[:]); err != nil {
		return Prepare{}, fmt.Errorf("ilppacket: read amount: %w", err)
	}
	var tsBuf [timestampLength]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return Prepare{}, fmt.Errorf("ilppacket: read expiresAt: %w", err)
	}
	expiresAt, err := decodeTimestamp(tsBuf[:])
	if err != nil {
		return Prepare{}, err
	}
	var cond [conditionSize]byte
	if _, err := io.ReadFull(r, cond[:]); err != nil {
		return Prepare{}, fmt.Errorf("ilppacket: read executionCondition: %w", err)
	}
	destBytes, err := readLengthPrefixed(r)
	if err != nil {
		return Prepare{}, fmt.Errorf("ilppacket: read destination: %w", err)
	}
	data, err := readLengthPrefixed(r)
	if err != nil {
		return Prepare{}, fmt.Errorf("ilppacket: read data: %w", err)
	}
	return Prepare{
		Amount:             getUint64(amtBuf[:]),
		ExpiresAt:          expiresAt,
		ExecutionCondition: cond,
		Destination:        string(destBytes),
		Data:               data,
	}, nil
}

// EncodeFulfill serializes f into its OER wire format.
func EncodeFulfill(f Fulfill) []byte {
	var body bytes.Buffer
	body.Write(f.Fulfillment[:])
	writeLengthPrefixed(&body, f.Data)
	return envelope(TypeFulfill, body.Bytes())
}

// DecodeFulfill parses a FULFILL packet's body.
func DecodeFulfill(body []byte) (Fulfill, error) {
	r := bytes.NewReader(body)
	var fulfillment [fulfillmentSize]byte
	if _, err := io.ReadFull(r, fulfillment[:]); err != nil {
		return Fulfill{}, fmt.Errorf("ilppacket: read fulfillment: %w", err)
	}
	data, err := readLengthPrefixed(r)
	if err != nil {
		return Fulfill{}, fmt.Errorf("ilppacket: read data: %w", err)
	}
	return Fulfill{Fulfillment: fulfillment, Data: data}, nil
}

// EncodeReject serializes r into its OER wire format.
func EncodeReject(rej Reject) []byte {
	var body bytes.Buffer
	code := rej.Code
	if len(code) != 3 {
		code = "F00"
	}
	body.WriteString(code)
	writeLengthPrefixed(&body, []byte(rej.TriggeredBy))
	writeLengthPrefixed(&body, []byte(rej.Message))
	writeLengthPrefixed(&body, rej.Data)
	return envelope(TypeReject, body.Bytes())
}

// DecodeReject parses a REJECT packet's body.
func DecodeReject(body []byte) (Reject, error) {
	if len(body) < 3 {
		return Reject{}, fmt.Errorf("ilppacket: reject body too short for code")
	}
	code := string(body[:3])
	r := bytes.NewReader(body[3:])
	triggeredBy, err := readLengthPrefixed(r)
	if err != nil {
		return Reject{}, fmt.Errorf("ilppacket: read triggeredBy: %w", err)
	}
	message, err := readLengthPrefixed(r)
	if err != nil {
		return Reject{}, fmt.Errorf("ilppacket: read message: %w", err)
	}
	data, err := readLengthPrefixed(r)
	if err != nil {
		return Reject{}, fmt.Errorf("ilppacket: read data: %w", err)
	}
	return Reject{Code: code, TriggeredBy: string(triggeredBy), Message: string(message), Data: data}, nil
}

// envelope prepends the type tag and outer length prefix to body.
func envelope(t Type, body []byte) []byte {
	var out bytes.Buffer
	out.WriteByte(byte(t))
	writeLengthPrefixed(&out, body)
	return out.Bytes()
}

// DecodeType peeks the first byte of an encoded packet to determine its type,
// and returns the inner body (type tag and outer length prefix stripped).
func DecodeType(packet []byte) (Type, []byte, error) {
	if len(packet) == 0 {
		return 0, nil, fmt.Errorf("ilppacket: empty packet")
	}
	t := Type(packet[0])
	r := bytes.NewReader(packet[1:])
	body, err := readLengthPrefixed(r)
	if err != nil {
		return 0, nil, fmt.Errorf("ilppacket: decode envelope: %w", err)
	}
	return t, body, nil
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = (v << 8) | uint64(b[i])
	}
	return v
}
