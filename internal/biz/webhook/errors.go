package webhook

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("webhook subscription not found")

// ValidationError 订阅字段校验错误，API 层映射为 4xx，与存储错误区分
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid webhook subscription: %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
