package _const

// TaskStatus 目录中任务的启用状态
type TaskStatus int

const (
	TaskStatusDisable TaskStatus = 0 // 关闭
	TaskStatusEnable  TaskStatus = 1 // 启用
)

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusEnable:
		return "Enable"
	case TaskStatusDisable:
		return "Disable"
	default:
		return "Unknown"
	}
}

func (s TaskStatus) Enabled() bool {
	return s == TaskStatusEnable
}

// StatusOf converts an enabled flag into a TaskStatus.
func StatusOf(enabled bool) TaskStatus {
	if enabled {
		return TaskStatusEnable
	}
	return TaskStatusDisable
}

// TriggerState 引擎中触发器的运行状态
type TriggerState int

const (
	TriggerStateNone     TriggerState = iota // 触发器不存在
	TriggerStateNormal                       // 正常调度
	TriggerStatePaused                       // 已暂停
	TriggerStateComplete                     // 不会再触发
	TriggerStateError                        // 触发器异常
	TriggerStateBlocked                      // 不可并发的任务上一次执行尚未结束
)

func (s TriggerState) String() string {
	switch s {
	case TriggerStateNone:
		return "NONE"
	case TriggerStateNormal:
		return "NORMAL"
	case TriggerStatePaused:
		return "PAUSED"
	case TriggerStateComplete:
		return "COMPLETE"
	case TriggerStateError:
		return "ERROR"
	case TriggerStateBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Enabled reports whether a trigger in this state is considered switched on.
// BLOCKED counts as enabled: the job is scheduled, a previous firing is still running.
func (s TriggerState) Enabled() bool {
	return s == TriggerStateNormal || s == TriggerStateBlocked
}
