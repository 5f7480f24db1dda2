package ssh

import (
	"context"
	"sync"
	"time"
)

// MockConnector 用于测试
type MockConnector struct {
	mu          sync.Mutex
	scripts     map[string]MockResult // key: command
	connectErrs map[string]error      // key: addr
	connects    []string              // 连接尝试记录 (addr)
	closed      int
}

type MockResult struct {
	Stdout  string
	Stderr  string
	Err     error
	DelayMs int
}

func NewMockConnector() *MockConnector {
	return &MockConnector{scripts: map[string]MockResult{}, connectErrs: map[string]error{}}
}

func (m *MockConnector) Set(cmd string, res MockResult) {
	m.mu.Lock()
	m.scripts[cmd] = res
	m.mu.Unlock()
}

func (m *MockConnector) FailConnect(addr string, err error) {
	m.mu.Lock()
	m.connectErrs[addr] = err
	m.mu.Unlock()
}

// ConnectAttempts 返回所有连接尝试的地址
func (m *MockConnector) ConnectAttempts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.connects))
	copy(out, m.connects)
	return out
}

// ClosedCount 返回已关闭的会话数
func (m *MockConnector) ClosedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConnector) Connect(addr, user string, auth Auth, timeout time.Duration) (Session, error) {
	m.mu.Lock()
	m.connects = append(m.connects, addr)
	err := m.connectErrs[addr]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &mockSession{parent: m}, nil
}

type mockSession struct {
	parent *MockConnector
	dead   bool
}

func (s *mockSession) Run(ctx context.Context, cmd string) (string, string, error) {
	s.parent.mu.Lock()
	r, ok := s.parent.scripts[cmd]
	s.parent.mu.Unlock()
	if !ok {
		return "", "sh: command not found: " + cmd + "\n", nil
	}
	if r.DelayMs > 0 {
		select {
		case <-ctx.Done():
			return "", "", &ExecError{Kind: ExecTimeout, Cause: ctx.Err().Error()}
		case <-time.After(time.Duration(r.DelayMs) * time.Millisecond):
		}
	}
	return r.Stdout, r.Stderr, r.Err
}

func (s *mockSession) Close() error {
	if s.dead {
		return nil
	}
	s.dead = true
	s.parent.mu.Lock()
	s.parent.closed++
	s.parent.mu.Unlock()
	return nil
}
