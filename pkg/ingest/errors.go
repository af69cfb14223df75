package ingest

import "fmt"

// ParameterMissingError is returned when a dataset is constructed without a required parameter.
type ParameterMissingError struct {
	Parameter string
}

func (e *ParameterMissingError) Error() string {
	return fmt.Sprintf("%s not provided", e.Parameter)
}

// UnknownConvertOperationError is returned for an unsupported constant operation.
type UnknownConvertOperationError struct {
	Operation string
}

func (e *UnknownConvertOperationError) Error() string {
	return fmt.Sprintf("unknown operation: %s", e.Operation)
}

// RequireParameters returns a ParameterMissingError for the first empty value,
// given as name / value pairs.
func RequireParameters(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i = i + 2 {
		if pairs[i+1] == "" {
			return &ParameterMissingError{Parameter: pairs[i]}
		}
	}
	return nil
}
