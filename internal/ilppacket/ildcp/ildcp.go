// Package ildcp encodes the config response a connector returns when a peer
// PREPAREs to the special destination "peer.config" — the client's own ILP
// address, the settlement asset code, and the asset scale. Kept as its own
// encode step, separate from the dispatcher that decides to invoke it.
package ildcp

import (
	"bytes"
	"fmt"
)

// PeerConfigDestination is the well-known ILDCP request destination.
const PeerConfigDestination = "peer.config"

// Response is the ILDCP config response fulfillment data.
type Response struct {
	ClientAddress string
	AssetCode     string
	AssetScale    uint8
}

// Encode serializes r as ILDCP's fulfillment data payload: a length-prefixed
// client address, a 1-byte asset scale, and a 3-byte asset code.
func Encode(r Response) ([]byte, error) {
	if len(r.AssetCode) != 3 {
		return nil, fmt.Errorf("ildcp: asset code must be 3 characters, got %q", r.AssetCode)
	}
	var buf bytes.Buffer
	addr := []byte(r.ClientAddress)
	if len(addr) > 255 {
		return nil, fmt.Errorf("ildcp: client address too long (%d bytes)", len(addr))
	}
	buf.WriteByte(byte(len(addr)))
	buf.Write(addr)
	buf.WriteByte(r.AssetScale)
	buf.WriteString(r.AssetCode)
	return buf.Bytes(), nil
}

// Decode parses an ILDCP response payload produced by Encode.
func Decode(data []byte) (Response, error) {
	if len(data) < 1 {
		return Response{}, fmt.Errorf("ildcp: empty payload")
	}
	addrLen := int(data[0])
	if len(data) < 1+addrLen+1+3 {
		return Response{}, fmt.Errorf("ildcp: payload too short")
	}
	addr := string(data[1 : 1+addrLen])
	scale := data[1+addrLen]
	code := string(data[1+addrLen+1 : 1+addrLen+1+3])
	return Response{ClientAddress: addr, AssetCode: code, AssetScale: scale}, nil
}
