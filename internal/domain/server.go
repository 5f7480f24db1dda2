package domain

import "time"

// Server 统一的服务器领域模型
// password 只在仓库层解密后短暂存在，永不序列化
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"` // SSH连接地址 (host 或 host:port)
	Username  string    `json:"username"`
	Password  string    `json:"-"` // 明文密码（读取时解密，不序列化）
	KeyFile   string    `json:"keyfile_path,omitempty"`
	OS        string    `json:"os"` // 系统族: ubuntu / centos / ...
	Tags      string    `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DefaultOS 未指定系统族时的默认值
const DefaultOS = "ubuntu"
