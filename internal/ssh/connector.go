package ssh

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"time"

	gssh "golang.org/x/crypto/ssh"
)

// Auth 连接凭据。KeyFile 非空时优先使用密钥，否则使用密码；二者不会都尝试。
type Auth struct {
	KeyFile  string
	Password string
}

// Session 一台服务器上已认证的执行通道，一次下发内有效。
// Run 每次调用执行一条命令，命令文本原样透传。
type Session interface {
	Run(ctx context.Context, cmd string) (stdout, stderr string, err error)
	Close() error
}

// Connector 建立会话的抽象，便于测试替换。
type Connector interface {
	Connect(addr, user string, auth Auth, timeout time.Duration) (Session, error)
}

// Dialer 真实 SSH 连接器。每次 Connect 新建连接，不做缓存或池化：
// 会话生命周期严格限定在一次下发内（打开-使用-必定关闭）。
type Dialer struct{}

func NewDialer() *Dialer { return &Dialer{} }

// Connect 建立并认证连接。未知主机密钥直接接受（内部工具的取舍，
// 见 InsecureIgnoreHostKey），timeout 同时约束拨号与认证。
func (d *Dialer) Connect(addr, user string, auth Auth, timeout time.Duration) (Session, error) {
	if addr == "" || user == "" {
		return nil, &ConnectError{Kind: ConnectNetwork, Cause: "empty addr or user"}
	}
	var methods []gssh.AuthMethod
	if auth.KeyFile != "" {
		pem, err := os.ReadFile(auth.KeyFile)
		if err != nil {
			return nil, &ConnectError{Kind: ConnectAuth, Cause: "read key file: " + err.Error()}
		}
		signer, err := gssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, &ConnectError{Kind: ConnectAuth, Cause: "parse key: " + err.Error()}
		}
		methods = []gssh.AuthMethod{gssh.PublicKeys(signer)}
	} else {
		methods = []gssh.AuthMethod{gssh.Password(auth.Password)}
	}
	conf := &gssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: gssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	// 支持 host:port 或仅 host
	target := addr
	if _, _, errSplit := net.SplitHostPort(addr); errSplit != nil {
		target = addr + ":22"
	}
	client, err := gssh.Dial("tcp", target, conf)
	if err != nil {
		return nil, classifyDial(err)
	}
	return &clientSession{client: client}, nil
}

func classifyDial(err error) *ConnectError {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &ConnectError{Kind: ConnectTimeout, Cause: err.Error()}
	}
	msg := err.Error()
	if strings.Contains(msg, "i/o timeout") {
		return &ConnectError{Kind: ConnectTimeout, Cause: msg}
	}
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods") {
		return &ConnectError{Kind: ConnectAuth, Cause: msg}
	}
	return &ConnectError{Kind: ConnectNetwork, Cause: msg}
}

type clientSession struct {
	client *gssh.Client
}

// Run 在新的 SSH session 上执行一条命令并完整捕获输出。
// 超时以 ctx 传入；超时会关闭底层连接以中断远端命令。
// 非零退出码不视为错误，成败由调用方按 stderr 判定。
func (s *clientSession) Run(ctx context.Context, cmd string) (string, string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", "", &ExecError{Kind: ExecProtocol, Cause: err.Error()}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		// 强制关闭底层连接以中断
		_ = s.client.Close()
		return sanitize(stdout.String()), sanitize(stderr.String()),
			&ExecError{Kind: ExecTimeout, Cause: ctx.Err().Error()}
	case err = <-done:
	}

	if err != nil {
		if _, ok := err.(*gssh.ExitError); !ok {
			return sanitize(stdout.String()), sanitize(stderr.String()),
				&ExecError{Kind: ExecProtocol, Cause: err.Error()}
		}
	}
	return sanitize(stdout.String()), sanitize(stderr.String()), nil
}

func (s *clientSession) Close() error { return s.client.Close() }

// sanitize 宽容解码：非法 UTF-8 字节替换为 U+FFFD，绝不报错。
func sanitize(s string) string {
	return strings.ToValidUTF8(s, "�")
}
