package service

import (
	"sync"
	"testing"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
)

// memRunRepo 只实现写测试需要的部分
type memRunRepo struct {
	mu   sync.Mutex
	rows []domain.RunRecord
}

func (m *memRunRepo) Insert(r *domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *r)
	return nil
}
func (m *memRunRepo) ListRecent(int) ([]domain.RunRecord, error)          { return nil, nil }
func (m *memRunRepo) ListByServer(int64, int) ([]domain.RunRecord, error) { return nil, nil }
func (m *memRunRepo) Cleanup(int, int) error                              { return nil }
func (m *memRunRepo) EnsureSchema() error                                 { return nil }

func (m *memRunRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestRunWriter_FlushOnClose(t *testing.T) {
	repo := &memRunRepo{}
	w := NewRunWriter(repo, 60, 100) // 刷新间隔拉长，靠 Close 排空
	for i := 0; i < 7; i++ {
		w.Write(domain.RunRecord{ServerID: int64(i), Status: domain.StatusOK})
	}
	w.Close()
	if repo.count() != 7 {
		t.Fatalf("expected 7 records flushed, got %d", repo.count())
	}
}

func TestRunWriter_BackpressureNoDrop(t *testing.T) {
	repo := &memRunRepo{}
	w := NewRunWriter(repo, 60, 1) // 通道容量极小，触发同步回退
	const n = 50
	for i := 0; i < n; i++ {
		w.Write(domain.RunRecord{ServerID: int64(i), Status: domain.StatusOK})
	}
	w.Close()
	if repo.count() != n {
		t.Fatalf("records lost under backpressure: %d of %d", repo.count(), n)
	}
}
