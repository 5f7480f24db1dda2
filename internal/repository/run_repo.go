package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
)

type RunRepo struct{ db *sql.DB }

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

// EnsureSchema 建表（幂等）。runs 只追加，不更新。
func (r *RunRepo) EnsureSchema() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER,
		command TEXT,
		status TEXT,
		output TEXT,
		created_at TIMESTAMP
	)`)
	return err
}

func (r *RunRepo) Insert(rec *domain.RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := r.db.Exec(`INSERT INTO runs(server_id,command,status,output,created_at) VALUES (?,?,?,?,?)`,
		rec.ServerID, rec.Command, rec.Status, rec.Output, rec.CreatedAt)
	if err != nil {
		return err
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// ListRecent 最近 limit 条，按时间倒序。
func (r *RunRepo) ListRecent(limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryList(`SELECT id,server_id,command,status,output,created_at FROM runs ORDER BY id DESC LIMIT ?`, limit)
}

// ListByServer 某台服务器的最近记录。
func (r *RunRepo) ListByServer(serverID int64, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryList(`SELECT id,server_id,command,status,output,created_at FROM runs WHERE server_id=? ORDER BY id DESC LIMIT ?`, serverID, limit)
}

func (r *RunRepo) queryList(q string, args ...any) ([]domain.RunRecord, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.RunRecord
	for rows.Next() {
		var rec domain.RunRecord
		if err := rows.Scan(&rec.ID, &rec.ServerID, &rec.Command, &rec.Status, &rec.Output, &rec.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Cleanup 根据保留天数与最大行数裁剪
func (r *RunRepo) Cleanup(retentionDays, maxRows int) error {
	if retentionDays > 0 {
		_, _ = r.db.Exec(`DELETE FROM runs WHERE created_at < datetime('now', ?)`, fmt.Sprintf("-%d days", retentionDays))
	}
	if maxRows > 0 {
		// 删除超过 maxRows 的最旧行
		_, _ = r.db.Exec(`DELETE FROM runs WHERE id IN (SELECT id FROM runs ORDER BY id DESC LIMIT -1 OFFSET ?)`, maxRows)
	}
	return nil
}
