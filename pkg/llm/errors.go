// Package llm fetches replies from local and remote text generation engines.
package llm

import "fmt"

// TransportError means the engine could not be reached or refused the request.
type TransportError struct {
	Engine string
	Status int // HTTP status, 0 when no response arrived
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http status %d: %v", e.Engine, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Engine, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the engine answered with something that is not the
// expected stream format.
type ProtocolError struct {
	Engine string
	Line   string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: malformed stream line %q: %v", e.Engine, e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
