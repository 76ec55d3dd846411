package task

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("task not found")

// ConfigError 任务配置错误，创建/更新时返回 4xx，绝不重试
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid task config: %s: %s", e.Field, e.Reason)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
