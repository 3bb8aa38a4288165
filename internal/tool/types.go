package tool

// Result is what a tool hands back to the orchestrator. ResponseText goes
// into the transcript as the tool message; AdditionalData is forwarded to
// the caller out of band (product cards, heatmap payloads) and never enters
// the transcript.
type Result struct {
	ResponseText   string
	AdditionalData map[string]any
}

// ToolError is a structured error formatted for model consumption. Returning
// it as the tool response lets the model see what went wrong and correct its
// next call instead of aborting the turn.
type ToolError struct {
	ErrorType string `json:"error_type"` // e.g. "InvalidArguments", "PermissionDenied", "NotFound"
	Message   string `json:"message"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return "<nil ToolError>"
	}
	if e.ErrorType == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.ErrorType
	}
	return e.ErrorType + ": " + e.Message
}

// errorResult wraps a ToolError as a Result.
func errorResult(errType, message string) Result {
	e := &ToolError{ErrorType: errType, Message: message}
	return Result{ResponseText: e.Error()}
}
