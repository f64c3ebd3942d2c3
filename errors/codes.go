package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Caller misuse of a pipeline.
const (
	// ErrCodePipelineReused indicates a pipeline chain was run a second time.
	ErrCodePipelineReused ErrorCode = "PIPELINE_REUSED"
	// ErrCodeEmitAfterClose indicates a node emitted after closing itself.
	ErrCodeEmitAfterClose ErrorCode = "EMIT_AFTER_CLOSE"
	// ErrCodeEmitOutsideHook indicates an emitter was used after its hook returned.
	ErrCodeEmitOutsideHook ErrorCode = "EMIT_OUTSIDE_HOOK"
	// ErrCodePushAfterClose indicates a value was pushed into a closed pushable source.
	ErrCodePushAfterClose ErrorCode = "PUSH_AFTER_CLOSE"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidConfig indicates a configuration section failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var misuseCodes = map[ErrorCode]bool{
	ErrCodePipelineReused:  true,
	ErrCodeEmitAfterClose:  true,
	ErrCodeEmitOutsideHook: true,
	ErrCodePushAfterClose:  true,
}

// IsMisuseCode returns true if the code reports a programming error on the
// caller's side rather than a failure inside a hook.
func IsMisuseCode(code ErrorCode) bool {
	return misuseCodes[code]
}
