package repository

import (
	"testing"
	"time"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
)

func TestRunRepo_ListRecentOrdering(t *testing.T) {
	db := openMemServers(t)
	defer db.Close()
	repo := NewRunRepo(db)
	for i := 0; i < 3; i++ {
		rec := domain.RunRecord{ServerID: 1, Command: "[]", Status: domain.StatusOK, Output: ""}
		if err := repo.Insert(&rec); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := repo.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expect 3 rows got %d", len(rows))
	}
	// 最新在前
	for i := 1; i < len(rows); i++ {
		if rows[i-1].ID < rows[i].ID {
			t.Fatalf("not descending: %v", rows)
		}
	}
	limited, err := repo.ListRecent(2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit ignored: %d %v", len(limited), err)
	}
}

func TestRunRepo_Cleanup(t *testing.T) {
	db := openMemServers(t)
	defer db.Close()
	repo := NewRunRepo(db)
	now := time.Now()
	for i := 0; i < 5; i++ {
		rec := domain.RunRecord{ServerID: 1, Command: "[]", Status: domain.StatusOK, CreatedAt: now.Add(-time.Duration(i) * 24 * time.Hour)}
		if err := repo.Insert(&rec); err != nil {
			t.Fatal(err)
		}
	}
	// 只保留最近 2 天
	if err := repo.Cleanup(2, 0); err != nil {
		t.Fatalf("cleanup err: %v", err)
	}
	rows, err := repo.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		if now.Sub(r.CreatedAt) > 48*time.Hour {
			t.Fatalf("row older than retention remains: %v", r.CreatedAt)
		}
	}
	// 再限制最大行数 1
	if err := repo.Cleanup(0, 1); err != nil {
		t.Fatalf("cleanup rows err: %v", err)
	}
	rows, err = repo.ListRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row remained, got %d", len(rows))
	}
}
