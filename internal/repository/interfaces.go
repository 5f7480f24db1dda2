package repository

import "github.com/QingMing-Bot/scriptrunner/internal/domain"

// ServerRepoIface 抽象服务器仓库（凭据存储）。
type ServerRepoIface interface {
	GetByID(int64) (domain.Server, error)
	GetByIDs([]int64) ([]domain.Server, error)
	ListAll() ([]domain.Server, error)
	ListByTag(string) ([]domain.Server, error)
	Save(*domain.Server) error
	BulkUpsert([]domain.Server) error
	UpdateTags(int64, string) error
	DeleteByID(int64) error // 级联删除该服务器的执行记录
	EnsureSchema() error
}

// RunRepoIface 抽象执行记录仓库（只追加）。
type RunRepoIface interface {
	Insert(*domain.RunRecord) error
	ListRecent(int) ([]domain.RunRecord, error)
	ListByServer(int64, int) ([]domain.RunRecord, error)
	Cleanup(int, int) error
	EnsureSchema() error
}

// 编译期断言本地实现满足接口
var _ ServerRepoIface = (*ServerRepo)(nil)
var _ RunRepoIface = (*RunRepo)(nil)
