package domain

import "time"

// RunRecord 记录一次下发中某台服务器的执行结果（每台一条，只追加不修改）
type RunRecord struct {
	ID        int64     `json:"id"`
	ServerID  int64     `json:"server_id"`
	Command   string    `json:"command"` // 实际下发的命令列表 (JSON 序列化)
	Status    string    `json:"status"`  // ok | failed
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}
