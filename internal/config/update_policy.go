package config

import (
	"fmt"
	"strings"
)

// UpdatePolicy 决定检测到等待中的新版本时如何答复更新提示：
// - prompt：把提示挂到 /-/update，由前台显式确认或拒绝；
// - auto：立即确认，等价于用户点击“是”；
// - never：始终拒绝，新版本等到旧版本不再控制任何页面后才激活。
type UpdatePolicy string

const (
	UpdatePolicyPrompt UpdatePolicy = "prompt"
	UpdatePolicyAuto   UpdatePolicy = "auto"
	UpdatePolicyNever  UpdatePolicy = "never"
)

// ParseUpdatePolicy 规范化配置值，空值视为 prompt。
func ParseUpdatePolicy(raw string) (UpdatePolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "":
		return UpdatePolicyPrompt, nil
	case string(UpdatePolicyPrompt), string(UpdatePolicyAuto), string(UpdatePolicyNever):
		return UpdatePolicy(normalized), nil
	default:
		return "", fmt.Errorf("不支持的 UpdatePolicy 值: %s", raw)
	}
}
