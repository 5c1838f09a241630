// Package protocol encodes requests and decodes packets of the exchange
// simulator wire format.
//
// Requests are two bytes: call type followed by a resend sequence (zero for
// stream-all). Every response packet is 17 bytes, big-endian:
//
//	symbol [4]byte | side byte | quantity int32 | price int32 | sequence int32
//
// A stream-all response is packets back to back with no length prefix or
// terminator.
package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/vietddude/packetfeed/internal/core/domain"
)

const (
	RequestSize = 2
	RecordSize  = 17

	symbolLen   = 4
	offSide     = 4
	offQuantity = 5
	offPrice    = 9
	offSequence = 13
)

// Encode returns the wire form of req.
func Encode(req domain.Request) []byte {
	return []byte{byte(req.Type), req.Sequence}
}

// Decode interprets one 17-byte packet. It returns false when b has the wrong
// length or any field fails validation; such packets contribute nothing.
func Decode(b []byte) (domain.Record, bool) {
	if len(b) != RecordSize {
		return domain.Record{}, false
	}

	side, ok := domain.ParseSide(b[offSide])
	if !ok {
		return domain.Record{}, false
	}

	r := domain.Record{
		Symbol:   string(bytes.TrimRight(b[:symbolLen], "\x00")),
		Side:     side,
		Quantity: int32(binary.BigEndian.Uint32(b[offQuantity:offPrice])),
		Price:    int32(binary.BigEndian.Uint32(b[offPrice:offSequence])),
		Sequence: int32(binary.BigEndian.Uint32(b[offSequence:RecordSize])),
	}
	if !r.Valid() {
		return domain.Record{}, false
	}
	return r, true
}

// DecodeStream splits b into consecutive 17-byte packets from offset 0.
// A trailing partial packet is dropped and invalid packets are skipped.
func DecodeStream(b []byte) []domain.Record {
	records, _ := DecodeStreamStats(b)
	return records
}

// StreamStats counts what DecodeStream threw away.
type StreamStats struct {
	Chunks   int
	Invalid  int
	Trailing int
}

// DecodeStreamStats is DecodeStream that also reports discarded input.
func DecodeStreamStats(b []byte) ([]domain.Record, StreamStats) {
	stats := StreamStats{
		Chunks:   len(b) / RecordSize,
		Trailing: len(b) % RecordSize,
	}
	records := make([]domain.Record, 0, stats.Chunks)
	for off := 0; off+RecordSize <= len(b); off += RecordSize {
		r, ok := Decode(b[off : off+RecordSize])
		if !ok {
			stats.Invalid++
			continue
		}
		records = append(records, r)
	}
	return records, stats
}

// EncodeRecord is the inverse of Decode. Symbols longer than four bytes are
// truncated and shorter ones are NUL padded.
func EncodeRecord(r domain.Record) []byte {
	b := make([]byte, RecordSize)
	copy(b[:symbolLen], r.Symbol)
	b[offSide] = byte(r.Side)
	binary.BigEndian.PutUint32(b[offQuantity:offPrice], uint32(r.Quantity))
	binary.BigEndian.PutUint32(b[offPrice:offSequence], uint32(r.Price))
	binary.BigEndian.PutUint32(b[offSequence:RecordSize], uint32(r.Sequence))
	return b
}
