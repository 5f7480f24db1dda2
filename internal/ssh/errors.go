package ssh

import "fmt"

// 连接失败分类
const (
	ConnectTimeout = "timeout"
	ConnectAuth    = "auth"
	ConnectNetwork = "network"
)

// 执行失败分类
const (
	ExecTimeout  = "timeout"
	ExecProtocol = "protocol"
)

// ConnectError 建立/认证会话失败。Kind 用于分类，Error() 给出可读原因，
// 调度层直接把它作为 failed 结果的输出文本。
type ConnectError struct {
	Kind  string
	Cause string
}

func (e *ConnectError) Error() string {
	switch e.Kind {
	case ConnectTimeout:
		return fmt.Sprintf("connect timeout: %s", e.Cause)
	case ConnectAuth:
		return fmt.Sprintf("authentication failed: %s", e.Cause)
	default:
		return fmt.Sprintf("connect failed: %s", e.Cause)
	}
}

// ExecError 单条命令执行失败（超时或协议层错误；非零退出码不算）。
type ExecError struct {
	Kind  string
	Cause string
}

func (e *ExecError) Error() string {
	if e.Kind == ExecTimeout {
		return fmt.Sprintf("command timeout: %s", e.Cause)
	}
	return fmt.Sprintf("command failed: %s", e.Cause)
}
