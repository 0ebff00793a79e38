package pruner

const (
	ErrTypeDirty            = "pruner-dirty"
	ErrTypeDuplicatePayload = "pruner-duplicate-payload"
	ErrTypeInvalidBox       = "pruner-invalid-box"
	ErrTypeCapacityExceeded = "pruner-capacity-exceeded"
	ErrTypeLengthMismatch   = "pruner-length-mismatch"
	ErrTypeCorrupted        = "pruner-corrupted"
)
