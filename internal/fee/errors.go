package fee

import "fmt"

// CalculationError reports inputs the engine refuses to compute with. It is
// never defaulted away: the request that produced it fails.
type CalculationError struct {
	Field  string
	Reason string
}

func (e *CalculationError) Error() string {
	if e.Field == "" {
		return "fee: " + e.Reason
	}
	return fmt.Sprintf("fee: %s: %s", e.Field, e.Reason)
}

func calcErr(field, format string, args ...any) error {
	return &CalculationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
