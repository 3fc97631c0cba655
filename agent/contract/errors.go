package contract

import "errors"

var (
	ErrModelInvoke           = errors.New("model invoke failed")
	ErrSchemaViolation       = errors.New("model response violates schema")
	ErrValidation            = errors.New("validation failed")
	ErrClassification        = errors.New("classification failed")
	ErrUnknownClassification = errors.New("unknown classification kind")
	ErrStage                 = errors.New("pipeline stage failed")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)
