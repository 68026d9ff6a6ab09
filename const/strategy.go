package _const

import "strings"

// SweepMode 游离任务(引擎中存在, 目录中不存在)的清理模式
type SweepMode int

const (
	SweepModeRandom SweepMode = 0x00000001 // 按概率清理, 默认模式
	SweepModeAlways SweepMode = 0x00000002 // 每个刷新周期都清理
)

func (s SweepMode) String() string {
	switch s {
	case SweepModeRandom:
		return "RANDOM"
	case SweepModeAlways:
		return "ALWAYS"
	default:
		return "UNKNOWN"
	}
}

// ParseSweepMode maps a configured mode name to a SweepMode. Blank or
// unrecognized values fall back to RANDOM.
func ParseSweepMode(s string) SweepMode {
	if strings.EqualFold(strings.TrimSpace(s), "ALWAYS") {
		return SweepModeAlways
	}
	return SweepModeRandom
}
