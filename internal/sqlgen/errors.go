package sqlgen

import "fmt"

// Generation failure kinds.
const (
	KindMalformedResponse  = "malformed_response"
	KindServiceUnavailable = "service_unavailable"
)

// GenerationError reports a failed candidate generation. Kind is one of the
// constants above.
type GenerationError struct {
	Kind string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("generation failed (%s)", e.Kind)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
