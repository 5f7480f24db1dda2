package service

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
	"github.com/QingMing-Bot/scriptrunner/internal/repository"
	sshx "github.com/QingMing-Bot/scriptrunner/internal/ssh"
	"github.com/QingMing-Bot/scriptrunner/pkg/secret"

	_ "modernc.org/sqlite"
)

// helper 打开内存库并建表
func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	if err := secret.Init("dispatch-test-key", ""); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := repository.NewServerRepo(db).EnsureSchema(); err != nil {
		t.Fatal(err)
	}
	if err := repository.NewRunRepo(db).EnsureSchema(); err != nil {
		t.Fatal(err)
	}
	return db
}

func addServer(t *testing.T, repo *repository.ServerRepo, name, host, osFamily string) domain.Server {
	t.Helper()
	s := domain.Server{Name: name, Host: host, Username: "root", Password: "pw", OS: osFamily}
	if err := repo.Save(&s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDispatch_OSFiltering(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	runRepo := repository.NewRunRepo(db)
	s1 := addServer(t, repo, "web1", "10.0.0.1", "ubuntu")
	s2 := addServer(t, repo, "db1", "10.0.0.2", "centos")

	writer := NewRunWriter(runRepo, 1, 10)
	mock := sshx.NewMockConnector()
	mock.Set("echo hi", sshx.MockResult{Stdout: "hi\n"})

	svc := NewDispatchService(repo, writer, mock, 2, 30)
	res, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: []int64{s1.ID, s2.ID},
		Commands:  []domain.CommandSpec{{OS: "ubuntu", Cmd: "echo hi"}},
		Timeout:   5,
	})
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expect 2 results got %d", len(res))
	}
	// ubuntu 机器执行，centos 机器无适用命令但仍为 ok
	if res[0].Status != domain.StatusOK {
		t.Fatalf("ubuntu host status = %s", res[0].Status)
	}
	if !strings.Contains(res[0].Output, "echo hi") || !strings.Contains(res[0].Output, "hi") {
		t.Fatalf("unexpected output: %q", res[0].Output)
	}
	if res[1].Status != domain.StatusOK || res[1].Output != "" {
		t.Fatalf("centos host should be ok/empty, got %s %q", res[1].Status, res[1].Output)
	}
	// 不匹配的机器不应发起连接
	attempts := mock.ConnectAttempts()
	if len(attempts) != 1 || attempts[0] != "10.0.0.1" {
		t.Fatalf("unexpected connect attempts: %v", attempts)
	}
	// 会话必须被关闭
	if mock.ClosedCount() != 1 {
		t.Fatalf("expected 1 closed session, got %d", mock.ClosedCount())
	}

	// 每台一条记录，含无适用命令的那台
	writer.Close()
	rows, err := runRepo.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expect 2 run records got %d", len(rows))
	}
}

func TestDispatch_UnknownServer(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	s1 := addServer(t, repo, "web1", "10.0.0.1", "ubuntu")

	mock := sshx.NewMockConnector()
	mock.Set("uptime", sshx.MockResult{Stdout: "up\n"})
	svc := NewDispatchService(repo, nil, mock, 2, 30)

	res, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: []int64{s1.ID, 9999},
		Commands:  []domain.CommandSpec{{OS: "ubuntu", Cmd: "uptime"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("expect 2 results got %d", len(res))
	}
	if res[1].ServerID != 9999 || res[1].Status != domain.StatusFailed || res[1].Output != ServerNotFound {
		t.Fatalf("unknown id result = %+v", res[1])
	}
	// 未注册ID不发起连接
	if got := mock.ConnectAttempts(); len(got) != 1 {
		t.Fatalf("unexpected connect attempts: %v", got)
	}
}

func TestDispatch_ConnectFailure(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	runRepo := repository.NewRunRepo(db)
	s1 := addServer(t, repo, "web1", "10.0.0.1", "ubuntu")
	s2 := addServer(t, repo, "web2", "10.0.0.2", "ubuntu")

	writer := NewRunWriter(runRepo, 1, 10)
	mock := sshx.NewMockConnector()
	mock.Set("uptime", sshx.MockResult{Stdout: "up\n"})
	mock.FailConnect("10.0.0.1", &sshx.ConnectError{Kind: sshx.ConnectTimeout, Cause: "dial tcp: i/o timeout"})

	svc := NewDispatchService(repo, writer, mock, 2, 30)
	res, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: []int64{s1.ID, s2.ID},
		Commands:  []domain.CommandSpec{{OS: "ubuntu", Cmd: "uptime"}},
		Timeout:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 连接失败的机器整台失败，输出为原因文本，不执行任何命令
	if res[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", res[0].Status)
	}
	if !strings.Contains(res[0].Output, "timeout") {
		t.Fatalf("expected timeout cause in output, got %q", res[0].Output)
	}
	if strings.Contains(res[0].Output, "$ uptime") {
		t.Fatalf("no command should run after connect failure: %q", res[0].Output)
	}
	// 一台失败不影响另一台
	if res[1].Status != domain.StatusOK {
		t.Fatalf("healthy host affected: %+v", res[1])
	}
	writer.Close()
}

func TestDispatch_StderrForcesFailed(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	s1 := addServer(t, repo, "web1", "10.0.0.1", "ubuntu")

	mock := sshx.NewMockConnector()
	mock.Set("ok-cmd", sshx.MockResult{Stdout: "fine\n"})
	mock.Set("bad-cmd", sshx.MockResult{Stdout: "partial\n", Stderr: "boom\n"})

	svc := NewDispatchService(repo, nil, mock, 1, 30)
	res, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: []int64{s1.ID},
		Commands: []domain.CommandSpec{
			{OS: "ubuntu", Cmd: "ok-cmd"},
			{OS: "ubuntu", Cmd: "bad-cmd"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// 任一命令 stderr 非空则整台 failed，但两条命令的输出都保留
	if res[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", res[0].Status)
	}
	out := res[0].Output
	for _, want := range []string{"$ ok-cmd", "fine", "$ bad-cmd", "ERR:", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}

func TestDispatch_ExecTimeout(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	s1 := addServer(t, repo, "web1", "10.0.0.1", "ubuntu")

	mock := sshx.NewMockConnector()
	mock.Set("slow", sshx.MockResult{Stdout: "never\n", DelayMs: 3000})

	svc := NewDispatchService(repo, nil, mock, 1, 30)
	res, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: []int64{s1.ID},
		Commands:  []domain.CommandSpec{{OS: "ubuntu", Cmd: "slow"}},
		Timeout:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", res[0].Status)
	}
	if !strings.Contains(res[0].Output, "timeout") {
		t.Fatalf("expected timeout text, got %q", res[0].Output)
	}
}

func TestDispatch_OrderPreserved(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	var ids []int64
	for _, h := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		s := addServer(t, repo, "srv-"+h, h, "ubuntu")
		ids = append(ids, s.ID)
	}
	// 倒序请求，结果必须按请求顺序返回
	req := []int64{ids[3], ids[0], ids[2], ids[1]}

	mock := sshx.NewMockConnector()
	mock.Set("hostname", sshx.MockResult{Stdout: "x\n"})
	svc := NewDispatchService(repo, nil, mock, 2, 30)
	res, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: req,
		Commands:  []domain.CommandSpec{{OS: "ubuntu", Cmd: "hostname"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != len(req) {
		t.Fatalf("expect %d results got %d", len(req), len(res))
	}
	for i, id := range req {
		if res[i].ServerID != id {
			t.Fatalf("result %d: expected server %d got %d", i, id, res[i].ServerID)
		}
	}
}

func TestDispatch_EmptyInputsRejected(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	mock := sshx.NewMockConnector()
	svc := NewDispatchService(repo, nil, mock, 1, 30)

	_, err := svc.Dispatch(domain.DispatchTask{Commands: []domain.CommandSpec{{OS: "ubuntu", Cmd: "x"}}})
	if !errors.Is(err, ErrNoServers) {
		t.Fatalf("expected ErrNoServers, got %v", err)
	}
	_, err = svc.Dispatch(domain.DispatchTask{ServerIDs: []int64{1}})
	if !errors.Is(err, ErrNoCommands) {
		t.Fatalf("expected ErrNoCommands, got %v", err)
	}
	if len(mock.ConnectAttempts()) != 0 {
		t.Fatalf("no connection should be attempted on invalid input")
	}
}

func TestDispatch_RecordRoundTrip(t *testing.T) {
	db := openMemDB(t)
	defer db.Close()
	repo := repository.NewServerRepo(db)
	runRepo := repository.NewRunRepo(db)
	s1 := addServer(t, repo, "web1", "10.0.0.1", "ubuntu")

	writer := NewRunWriter(runRepo, 1, 10)
	mock := sshx.NewMockConnector()
	mock.Set("uptime", sshx.MockResult{Stdout: "up\n"})

	svc := NewDispatchService(repo, writer, mock, 1, 30)
	if _, err := svc.Dispatch(domain.DispatchTask{
		ServerIDs: []int64{s1.ID},
		Commands:  []domain.CommandSpec{{OS: "ubuntu", Cmd: "uptime"}},
	}); err != nil {
		t.Fatal(err)
	}
	writer.Close()

	rows, err := runRepo.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expect 1 record got %d", len(rows))
	}
	rec := rows[0]
	if rec.ServerID != s1.ID || rec.Status != domain.StatusOK {
		t.Fatalf("record mismatch: %+v", rec)
	}
	// command 列保存实际下发的命令列表 (JSON)
	if !strings.Contains(rec.Command, "uptime") || !strings.Contains(rec.Command, "ubuntu") {
		t.Fatalf("command payload missing specs: %q", rec.Command)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}
}
