package ilppacket

import (
	"bytes"
	"fmt"
	"io"
)

// readLengthPrefix reads an ASN.1 OER-style length prefix: a single byte if
// the length is below 128, or a top-bit-set byte giving the count of
// following big-endian length bytes.
func readLengthPrefix(r *bytes.Reader) (int, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("ilppacket: read length prefix: %w", err)
	}
	if first < 0x80 {
		return int(first), nil
	}
	numBytes := int(first & 0x7F)
	if numBytes == 0 || numBytes > 8 {
		return 0, fmt.Errorf("ilppacket: invalid long-form length prefix byte count %d", numBytes)
	}
	var length int
	for i := 0; i < numBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("ilppacket: read length prefix byte: %w", err)
		}
		length = (length << 8) | int(b)
	}
	return length, nil
}

// writeLengthPrefix appends length's OER-style prefix to buf.
func writeLengthPrefix(buf *bytes.Buffer, length int) {
	if length < 0x80 {
		buf.WriteByte(byte(length))
		return
	}
	var lenBytes []byte
	n := length
	for n > 0 {
		lenBytes = append([]byte{byte(n & 0xFF)}, lenBytes...)
		n >>= 8
	}
	buf.WriteByte(0x80 | byte(len(lenBytes)))
	buf.Write(lenBytes)
}

// readLengthPrefixed reads a length-prefixed octet string.
func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readLengthPrefix(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("ilppacket: read %d-byte field: %w", n, err)
	}
	return buf, nil
}

// writeLengthPrefixed appends data as a length-prefixed octet string.
func writeLengthPrefixed(buf *bytes.Buffer, data []byte) {
	writeLengthPrefix(buf, len(data))
	buf.Write(data)
}
