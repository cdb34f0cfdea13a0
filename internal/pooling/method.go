package pooling

import "strings"

// Method is the reduction applied to per-token hidden states.
type Method int

const (
	// Mean is the mask-weighted average of valid token vectors. It is the
	// zero value so an unresolved Method always means mean pooling.
	Mean Method = iota
	// CLS selects the vector at token position 0.
	CLS
	// Raw returns the unreduced hidden states.
	Raw
)

// String returns the configuration token for m.
func (m Method) String() string {
	switch m {
	case CLS:
		return "clspooling"
	case Raw:
		return "pooling"
	default:
		return "meanpooling"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMethod maps a configuration token to a Method. Both the long tokens
// ("pooling", "clspooling", "meanpooling") and the short names ("raw",
// "cls", "mean") are accepted, case-insensitively. ok is false for empty or
// unrecognized tokens.
func ParseMethod(s string) (m Method, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pooling", "raw":
		return Raw, true
	case "clspooling", "cls":
		return CLS, true
	case "meanpooling", "mean":
		return Mean, true
	default:
		return Mean, false
	}
}
