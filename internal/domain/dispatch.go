package domain

// 结果状态常量（与历史表 status 列一致）
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// CommandSpec 待下发的命令，只发给 os 完全匹配的服务器
type CommandSpec struct {
	OS  string `json:"os"`
	Cmd string `json:"cmd"`
}

// DispatchTask 一次批量下发任务
type DispatchTask struct {
	ServerIDs []int64       // 目标服务器ID列表
	Commands  []CommandSpec // 按输入顺序执行
	Timeout   int           // 秒，分别约束每次连接与每条命令
	Parallel  int           // 每任务并发(>0 覆盖全局)
}

// DispatchResult 单台服务器在一次下发中的聚合结果
type DispatchResult struct {
	ServerID   int64  `json:"server_id"`
	ServerName string `json:"server_name,omitempty"`
	Status     string `json:"status"` // ok | failed
	Output     string `json:"output"`
}
