package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
	"github.com/QingMing-Bot/scriptrunner/internal/repository"
	"github.com/QingMing-Bot/scriptrunner/internal/ssh"
)

// 输入校验错误：这是唯一会作为硬错误返回给调用方的情况，
// 单台服务器的连接/执行失败只会体现在对应结果的 status 上。
var (
	ErrNoServers  = errors.New("no servers")
	ErrNoCommands = errors.New("no commands")
)

// ServerNotFound 未注册ID对应结果的输出文本
const ServerNotFound = "Server not found"

// DispatchService 负责批量下发编排：解析目标 → 按系统族过滤命令 →
// 逐台建立会话顺序执行 → 聚合输出并落历史。
type DispatchService struct {
	repo           repository.ServerRepoIface
	writer         *RunWriter
	connector      ssh.Connector
	maxParallel    int
	defaultTimeout int
}

func NewDispatchService(repo repository.ServerRepoIface, writer *RunWriter, connector ssh.Connector, maxParallel, defaultTimeout int) *DispatchService {
	if defaultTimeout <= 0 {
		defaultTimeout = 30
	}
	return &DispatchService{repo: repo, writer: writer, connector: connector, maxParallel: maxParallel, defaultTimeout: defaultTimeout}
}

// Dispatch 对一组服务器并发下发命令。
// 返回结果与请求的 ServerIDs 一一对应且顺序一致；任何一台失败都不影响其它台。
func (s *DispatchService) Dispatch(task domain.DispatchTask) ([]domain.DispatchResult, error) {
	if len(task.ServerIDs) == 0 {
		return nil, ErrNoServers
	}
	if len(task.Commands) == 0 {
		return nil, ErrNoCommands
	}
	if task.Timeout <= 0 {
		task.Timeout = s.defaultTimeout
	}
	timeout := time.Duration(task.Timeout) * time.Second

	// 取服务器
	servers, err := s.repo.GetByIDs(task.ServerIDs)
	if err != nil {
		return nil, err
	}
	sMap := make(map[int64]domain.Server, len(servers))
	for _, sv := range servers {
		sMap[sv.ID] = sv
	}

	// 按下标写入，保持请求顺序
	results := make([]domain.DispatchResult, len(task.ServerIDs))
	var (
		wg  sync.WaitGroup
		sem chan struct{}
	)
	limit := s.maxParallel
	if task.Parallel > 0 {
		limit = task.Parallel
	}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}

	for i, id := range task.ServerIDs {
		sv, ok := sMap[id]
		if !ok {
			results[i] = domain.DispatchResult{ServerID: id, Status: domain.StatusFailed, Output: ServerNotFound}
			continue
		}
		if sem != nil {
			sem <- struct{}{}
		}
		wg.Add(1)
		go func(idx int, sc domain.Server) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			results[idx] = s.runHost(sc, task.Commands, timeout)
		}(i, sv)
	}

	wg.Wait()
	return results, nil
}

// runHost 单台服务器的完整流水线：连接一次，按输入顺序执行所有适用命令，
// 最后必定关闭会话并写一条执行记录。
func (s *DispatchService) runHost(sv domain.Server, commands []domain.CommandSpec, timeout time.Duration) domain.DispatchResult {
	res := domain.DispatchResult{ServerID: sv.ID, ServerName: sv.Name, Status: domain.StatusOK}

	// 只保留系统族完全匹配的命令，保持输入顺序
	applicable := make([]domain.CommandSpec, 0, len(commands))
	for _, c := range commands {
		if c.OS == sv.OS {
			applicable = append(applicable, c)
		}
	}
	payload, _ := json.Marshal(applicable)

	if len(applicable) == 0 {
		// 无适用命令仍算 ok，保留一条空记录
		s.record(sv.ID, string(payload), domain.StatusOK, "")
		return res
	}

	sess, err := s.connector.Connect(sv.Host, sv.Username, ssh.Auth{KeyFile: sv.KeyFile, Password: sv.Password}, timeout)
	if err != nil {
		// 连接失败：整台标记失败，不执行任何命令
		res.Status = domain.StatusFailed
		res.Output = err.Error()
		s.record(sv.ID, string(payload), res.Status, res.Output)
		return res
	}
	defer sess.Close()

	var out strings.Builder
	failed := false
	for _, c := range applicable {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		stdout, stderr, exErr := sess.Run(ctx, c.Cmd)
		cancel()

		out.WriteString("$ " + c.Cmd + "\n")
		if exErr != nil {
			out.WriteString(exErr.Error() + "\n")
			failed = true
			// 会话已不可靠（超时会关闭底层连接），剩余命令不再尝试
			break
		}
		out.WriteString(stdout)
		if strings.TrimSpace(stderr) != "" {
			out.WriteString("ERR:\n" + stderr)
			failed = true
		}
		out.WriteString("\n")
	}

	res.Output = out.String()
	if failed {
		res.Status = domain.StatusFailed
	}
	s.record(sv.ID, string(payload), res.Status, res.Output)
	return res
}

func (s *DispatchService) record(serverID int64, command, status, output string) {
	if s.writer == nil {
		return
	}
	s.writer.Write(domain.RunRecord{ServerID: serverID, Command: command, Status: status, Output: output, CreatedAt: time.Now()})
}
