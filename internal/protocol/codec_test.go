package protocol

import (
	"bytes"
	"testing"

	"github.com/vietddude/packetfeed/internal/core/domain"
)

func msftPacket(side byte) []byte {
	return []byte{
		'M', 'S', 'F', 'T',
		side,
		0x00, 0x00, 0x00, 0x64, // 100
		0x00, 0x00, 0x61, 0xa8, // 25000
		0x00, 0x00, 0x00, 0x01, // 1
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		req  domain.Request
		want []byte
	}{
		{domain.StreamAllRequest(), []byte{0x01, 0x00}},
		{domain.ResendRequest(7), []byte{0x02, 0x07}},
		{domain.ResendRequest(255), []byte{0x02, 0xff}},
		{domain.ResendRequest(256), []byte{0x02, 0x00}},
	}

	for _, tt := range tests {
		if got := Encode(tt.req); !bytes.Equal(got, tt.want) {
			t.Errorf("Encode(%+v) = %x, want %x", tt.req, got, tt.want)
		}
	}
}

func TestEncode_SequenceAliasing(t *testing.T) {
	// One-byte field: 0 and 256 are indistinguishable on the wire.
	if !bytes.Equal(Encode(domain.ResendRequest(0)), Encode(domain.ResendRequest(256))) {
		t.Error("expected 0 and 256 to encode identically")
	}
}

func TestDecode(t *testing.T) {
	r, ok := Decode(msftPacket('B'))
	if !ok {
		t.Fatal("expected valid record")
	}
	want := domain.Record{Symbol: "MSFT", Side: domain.SideBuy, Quantity: 100, Price: 25000, Sequence: 1}
	if r != want {
		t.Errorf("Decode() = %+v, want %+v", r, want)
	}

	if _, ok := Decode(msftPacket('X')); ok {
		t.Error("expected side 'X' to be rejected")
	}
}

func TestDecode_Rejects(t *testing.T) {
	short := msftPacket('B')[:16]
	long := append(msftPacket('B'), 0)

	zeroQty := msftPacket('S')
	copy(zeroQty[5:9], []byte{0, 0, 0, 0})

	negPrice := msftPacket('S')
	copy(negPrice[9:13], []byte{0xff, 0xff, 0xff, 0xff})

	zeroSeq := msftPacket('S')
	copy(zeroSeq[13:17], []byte{0, 0, 0, 0})

	cases := map[string][]byte{
		"short":     short,
		"long":      long,
		"zero qty":  zeroQty,
		"neg price": negPrice,
		"zero seq":  zeroSeq,
	}
	for name, b := range cases {
		if _, ok := Decode(b); ok {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestDecode_TrimsTrailingNulls(t *testing.T) {
	b := msftPacket('S')
	copy(b[:4], []byte{'I', 'B', 0, 0})
	r, ok := Decode(b)
	if !ok {
		t.Fatal("expected valid record")
	}
	if r.Symbol != "IB" {
		t.Errorf("expected symbol IB, got %q", r.Symbol)
	}
}

func TestDecodeStream_DropsTrailingBytes(t *testing.T) {
	for r := 0; r < RecordSize; r++ {
		buf := append(append(msftPacket('B'), msftPacket('S')...), make([]byte, r)...)
		records, stats := DecodeStreamStats(buf)
		if stats.Chunks != 2 {
			t.Errorf("r=%d: expected 2 chunks, got %d", r, stats.Chunks)
		}
		if stats.Trailing != r {
			t.Errorf("r=%d: expected %d trailing bytes, got %d", r, r, stats.Trailing)
		}
		if len(records) != 2 {
			t.Errorf("r=%d: expected 2 records, got %d", r, len(records))
		}
	}
}

func TestDecodeStream_SkipsInvalid(t *testing.T) {
	buf := append(append(msftPacket('B'), msftPacket('?')...), msftPacket('S')...)
	records, stats := DecodeStreamStats(buf)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if stats.Invalid != 1 {
		t.Errorf("expected 1 invalid chunk, got %d", stats.Invalid)
	}
	if records[0].Side != domain.SideBuy || records[1].Side != domain.SideSell {
		t.Errorf("unexpected sides: %v %v", records[0].Side, records[1].Side)
	}
}

func TestDecodeStream_Empty(t *testing.T) {
	if got := DecodeStream(nil); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestEncodeRecord_RoundTrip(t *testing.T) {
	in := domain.Record{Symbol: "AAPL", Side: domain.SideSell, Quantity: 42, Price: 17250, Sequence: 300}
	out, ok := Decode(EncodeRecord(in))
	if !ok || out != in {
		t.Errorf("round trip = %+v (ok=%v), want %+v", out, ok, in)
	}
	if !bytes.Equal(EncodeRecord(domain.Record{Symbol: "MSFT", Side: domain.SideBuy, Quantity: 100, Price: 25000, Sequence: 1}), msftPacket('B')) {
		t.Error("EncodeRecord does not match reference packet")
	}
}
