package domain

// RequestType is the call type byte of an outbound request.
type RequestType byte

const (
	RequestStreamAll RequestType = 0x01
	RequestResend    RequestType = 0x02
)

func (t RequestType) String() string {
	switch t {
	case RequestStreamAll:
		return "stream_all"
	case RequestResend:
		return "resend"
	default:
		return "unknown"
	}
}

// Request is an outbound command. Sequence is only meaningful for RequestResend.
type Request struct {
	Type     RequestType
	Sequence byte
}

// StreamAllRequest asks the server for every packet it holds.
func StreamAllRequest() Request {
	return Request{Type: RequestStreamAll}
}

// ResendRequest asks for a single packet. The wire field is one byte wide, so
// the sequence is sent modulo 256: 0 and 256 produce the same request.
func ResendRequest(seq int32) Request {
	return Request{Type: RequestResend, Sequence: byte(seq)}
}

// MaxAddressableSequence is the largest sequence a resend can name unambiguously.
const MaxAddressableSequence = 255

// Addressable reports whether seq survives the one-byte resend field intact.
func Addressable(seq int32) bool {
	return seq >= 0 && seq <= MaxAddressableSequence
}
