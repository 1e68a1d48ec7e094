// Package abi describes the narrow callback/property surface shared between the
// interception module and the data-plane host that drives it.
package abi

// Direction identifies one of the two independently tracked flows of an exchange.
type Direction int

const (
	DirectionRequest Direction = iota
	DirectionResponse
)

// String returns "request" or "response".
func (d Direction) String() string {
	if d == DirectionResponse {
		return "response"
	}
	return "request"
}

// Action tells the host whether the filter chain may proceed.
type Action int

const (
	ActionContinue Action = iota
	ActionPause
)

// ContextKind tells the host how to shape the callbacks it delivers.
type ContextKind string

// ContextKindHTTPExchange selects per-exchange HTTP header/body callbacks.
const ContextKindHTTPExchange ContextKind = "HTTP-exchange"

// Property keys written into the host property store; sibling stages read them
// to decide whether body bytes are forwarded to this module.
const (
	PropertyProcessRequestBody  = "processRequestBody"
	PropertyProcessResponseBody = "processResponseBody"
)

// PropertyTrue is the encoded boolean value for an enabled flag.
var PropertyTrue = []byte("true")

// BodyProperty returns the property key that gates body delivery for d.
func BodyProperty(d Direction) string {
	if d == DirectionResponse {
		return PropertyProcessResponseBody
	}
	return PropertyProcessRequestBody
}

// HeaderPair is one header in the order the host presents them.
type HeaderPair struct {
	Name  string
	Value string
}

// Host is implemented by the data plane. All reads refer to the exchange the
// Host value was handed out for.
type Host interface {
	// Headers returns the header list of the given direction.
	Headers(dir Direction) ([]HeaderPair, error)
	// Body returns size bytes of the current body chunk starting at start.
	Body(dir Direction, start, size int) ([]byte, error)
	// SetProperty writes value under path into the host property store.
	SetProperty(path []string, value []byte) error
}
