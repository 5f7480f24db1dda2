package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
	"github.com/QingMing-Bot/scriptrunner/pkg/secret"
)

type ServerRepo struct {
	db *sql.DB
}

func NewServerRepo(db *sql.DB) *ServerRepo {
	return &ServerRepo{db: db}
}

// EnsureSchema 建表（幂等）。name 与 host 唯一。
func (r *ServerRepo) EnsureSchema() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS servers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE,
		host TEXT UNIQUE,
		username TEXT,
		password_enc TEXT,
		keyfile_path TEXT,
		os TEXT DEFAULT 'ubuntu',
		tags TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

const serverCols = `id, COALESCE(name,''), COALESCE(host,''), COALESCE(username,''), COALESCE(password_enc,''), COALESCE(keyfile_path,''), COALESCE(os,''), COALESCE(tags,''), COALESCE(created_at,'')`

// scanServer 统一扫描一行并解密密码。
func scanServer(scan func(...any) error) (domain.Server, error) {
	var s domain.Server
	var createdAtStr string
	if err := scan(&s.ID, &s.Name, &s.Host, &s.Username, &s.Password, &s.KeyFile, &s.OS, &s.Tags, &createdAtStr); err != nil {
		return domain.Server{}, err
	}
	if createdAtStr != "" {
		if ts, e := time.Parse(time.RFC3339Nano, createdAtStr); e == nil {
			s.CreatedAt = ts
		} else if ts, e := time.Parse("2006-01-02 15:04:05", createdAtStr); e == nil {
			s.CreatedAt = ts
		}
	}
	if s.Password != "" { // 解密（这是密码明文的唯一恢复点）
		if p, err := secret.DecryptString(s.Password); err == nil {
			s.Password = p
		} else {
			s.Password = ""
		}
	}
	return s, nil
}

func (r *ServerRepo) GetByID(id int64) (domain.Server, error) {
	row := r.db.QueryRow(`SELECT `+serverCols+` FROM servers WHERE id = ? LIMIT 1`, id)
	return scanServer(row.Scan)
}

func (r *ServerRepo) GetByIDs(ids []int64) ([]domain.Server, error) {
	if len(ids) == 0 {
		return []domain.Server{}, nil
	}
	// 构建占位符
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT ` + serverCols + ` FROM servers WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.Server
	for rows.Next() {
		s, err := scanServer(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListAll 返回全部服务器（用于列表/导出）。
func (r *ServerRepo) ListAll() ([]domain.Server, error) {
	return r.queryList(`SELECT ` + serverCols + ` FROM servers ORDER BY id DESC`)
}

// ListByTag 按标签模糊过滤；空标签等价于 ListAll。
func (r *ServerRepo) ListByTag(tag string) ([]domain.Server, error) {
	if tag == "" {
		return r.ListAll()
	}
	return r.queryList(`SELECT `+serverCols+` FROM servers WHERE tags LIKE ? ORDER BY id DESC`, "%"+tag+"%")
}

func (r *ServerRepo) queryList(q string, args ...any) ([]domain.Server, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.Server
	for rows.Next() {
		s, err := scanServer(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Save 插入或更新（host 作为业务唯一键）。密码加密落盘。
func (r *ServerRepo) Save(s *domain.Server) error {
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("empty host")
	}
	if s.OS == "" {
		s.OS = domain.DefaultOS
	}
	encPass, err := secret.EncryptString(s.Password)
	if err != nil {
		return err
	}
	var exID int64
	row := r.db.QueryRow(`SELECT id FROM servers WHERE host = ? LIMIT 1`, s.Host)
	_ = row.Scan(&exID)
	if exID == 0 { // insert
		res, err := r.db.Exec(`INSERT INTO servers (name, host, username, password_enc, keyfile_path, os, tags) VALUES (?,?,?,?,?,?,?)`,
			s.Name, s.Host, s.Username, encPass, s.KeyFile, s.OS, s.Tags)
		if err != nil {
			return err
		}
		s.ID, _ = res.LastInsertId()
	} else { // update
		_, err := r.db.Exec(`UPDATE servers SET name=?, username=?, password_enc=?, keyfile_path=?, os=?, tags=? WHERE host=?`,
			s.Name, s.Username, encPass, s.KeyFile, s.OS, s.Tags, s.Host)
		if err != nil {
			return err
		}
		s.ID = exID
	}
	return nil
}

// BulkUpsert 批量插入/更新（以 host 作为唯一键），用于导入。
func (r *ServerRepo) BulkUpsert(ss []domain.Server) error {
	if len(ss) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for i := range ss {
		s := &ss[i]
		if s.OS == "" {
			s.OS = domain.DefaultOS
		}
		encPass, e := secret.EncryptString(s.Password)
		if e != nil {
			err = e
			return err
		}
		var exID int64
		row := tx.QueryRow(`SELECT id FROM servers WHERE host = ? LIMIT 1`, s.Host)
		_ = row.Scan(&exID)
		if exID == 0 {
			res, e := tx.Exec(`INSERT INTO servers (name, host, username, password_enc, keyfile_path, os, tags) VALUES (?,?,?,?,?,?,?)`,
				s.Name, s.Host, s.Username, encPass, s.KeyFile, s.OS, s.Tags)
			if e != nil {
				err = e
				return err
			}
			s.ID, _ = res.LastInsertId()
		} else {
			if _, e := tx.Exec(`UPDATE servers SET name=?, username=?, password_enc=?, keyfile_path=?, os=?, tags=? WHERE host=?`,
				s.Name, s.Username, encPass, s.KeyFile, s.OS, s.Tags, s.Host); e != nil {
				err = e
				return err
			}
			s.ID = exID
		}
	}
	return tx.Commit()
}

// UpdateTags 只更新标签。
func (r *ServerRepo) UpdateTags(id int64, tags string) error {
	res, err := r.db.Exec(`UPDATE servers SET tags=? WHERE id=?`, tags, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByID 删除服务器并级联删除其执行记录。
func (r *ServerRepo) DeleteByID(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if _, err = tx.Exec(`DELETE FROM runs WHERE server_id=?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err = tx.Exec(`DELETE FROM servers WHERE id=?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
