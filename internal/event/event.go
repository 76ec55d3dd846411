package event

// Type 事件类型，封闭集合
type Type string

const (
	TypeRunCompleted Type = "automation.run.completed"
	TypeRunFailed    Type = "automation.run.failed"
	TypeTest         Type = "webhook.test"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeRunCompleted, TypeRunFailed, TypeTest:
		return true
	default:
		return false
	}
}

// Types 事件词汇表，订阅校验用
func Types() []Type {
	return []Type{TypeRunCompleted, TypeRunFailed, TypeTest}
}

// Event 事件信封。字段顺序即外发 webhook 的 JSON 键顺序，
// 签名覆盖的是序列化后的精确字节，顺序不可改。
type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	ProjectID string `json:"projectId"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// TaskSummary 运行事件 data.task 载荷
type TaskSummary struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	Cadence   string `json:"cadence"`
	Status    string `json:"status"`
}

// RunSummary 运行事件 data.run 载荷
type RunSummary struct {
	ID           uint64 `json:"id"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"durationMs"`
	SuccessCount int    `json:"successCount"`
	FailCount    int    `json:"failCount"`
	Error        string `json:"error,omitempty"`
}

// RunData 运行完成/失败事件的 data
type RunData struct {
	Task TaskSummary `json:"task"`
	Run  RunSummary  `json:"run"`
}

// TestData webhook.test 事件的 data
type TestData struct {
	Message string `json:"message"`
}
