package domain

import "fmt"

// Side is the buy/sell indicator of a packet.
type Side byte

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

// ParseSide maps the wire byte to a Side. Anything other than 'B' or 'S' is rejected.
func ParseSide(b byte) (Side, bool) {
	switch Side(b) {
	case SideBuy, SideSell:
		return Side(b), true
	default:
		return 0, false
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return fmt.Sprintf("Side(0x%02x)", byte(s))
	}
}

// Indicator returns the single-letter form used in exported artifacts.
func (s Side) Indicator() string {
	return string(rune(s))
}

// Record is one decoded market event.
type Record struct {
	Symbol   string
	Side     Side
	Quantity int32
	Price    int32
	Sequence int32
}

// Valid reports whether every field is inside its declared range.
func (r Record) Valid() bool {
	if _, ok := ParseSide(byte(r.Side)); !ok {
		return false
	}
	return r.Quantity >= 1 && r.Price >= 0 && r.Sequence >= 1
}

func (r Record) String() string {
	return fmt.Sprintf("#%d %s %s qty=%d price=%d", r.Sequence, r.Symbol, r.Side, r.Quantity, r.Price)
}
