package bridge

// Error codes reported to the application.
const (
	CodeServiceUnavailable = "E_CONNECTION_SERVICE_NOT_AVAILABLE"
	CodeNoActivity         = "E_ACTIVITY_DOES_NOT_EXIST"
	CodeMissingPermission  = "E_MISSING_PERMISSION"
)

// CommandError is a structured command failure carrying an error code.
type CommandError struct {
	Code    string
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is matches any CommandError with the same code.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Code == e.Code
}

var (
	ErrServiceUnavailable = &CommandError{Code: CodeServiceUnavailable, Message: "connection service not available on this platform"}
	ErrNoActivity         = &CommandError{Code: CodeNoActivity, Message: "activity doesn't exist"}
	ErrMissingPermission  = &CommandError{Code: CodeMissingPermission, Message: "required permissions not granted"}
)
