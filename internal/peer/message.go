// Package peer implements the TCP-framed message transport between the
// connector and its peers: a 4-byte big-endian length prefix followed by a
// JSON-encoded envelope of named sub-protocols, read/written over net.Conn.
package peer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Recognized sub-protocol names.
const (
	ProtocolInfo             = "info"
	ProtocolLastClaim        = "last_claim"
	ProtocolChannel          = "channel"
	ProtocolChannelSignature = "channel_signature"
	ProtocolFundChannel      = "fund_channel"
	ProtocolILP              = "ilp"
	ProtocolClaim            = "claim"
)

// SubProtocol is one named, typed payload within a peer Message.
type SubProtocol struct {
	Name        string `json:"protocolName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Message is the envelope exchanged between peers: an ordered list of
// sub-protocols, each examined independently by the dispatcher.
type Message struct {
	Protocols []SubProtocol `json:"protocols"`
}

// Get returns the first sub-protocol named name, if present.
func (m Message) Get(name string) (SubProtocol, bool) {
	for _, p := range m.Protocols {
		if p.Name == name {
			return p, true
		}
	}
	return SubProtocol{}, false
}

// maxMessageSize bounds a single message to guard against a malicious or
// broken peer sending an unbounded length prefix.
const maxMessageSize = 16 << 20 // 16 MiB

// ReadMessage reads one length-prefixed JSON message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, fmt.Errorf("peer: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessageSize {
		return Message{}, fmt.Errorf("peer: message of %d bytes exceeds maximum %d", n, maxMessageSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, fmt.Errorf("peer: read message body: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return Message{}, fmt.Errorf("peer: decode message: %w", err)
	}
	return msg, nil
}

// WriteMessage writes msg to w as a length-prefixed JSON message.
func WriteMessage(w io.Writer, msg Message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("peer: encode message: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("peer: write length prefix: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("peer: write message body: %w", err)
	}
	return nil
}
