package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/QingMing-Bot/scriptrunner/internal/httpapi"
	"github.com/QingMing-Bot/scriptrunner/internal/repository"
	"github.com/QingMing-Bot/scriptrunner/internal/service"
	"github.com/QingMing-Bot/scriptrunner/internal/ssh"
	"github.com/QingMing-Bot/scriptrunner/pkg/config"
	"github.com/QingMing-Bot/scriptrunner/pkg/secret"
)

func main() {
	cfg := config.Load()
	if err := secret.Init(cfg.SecretKey, cfg.KeyFilePath()); err != nil {
		log.Fatal(err)
	}
	db, err := sql.Open("sqlite", cfg.DBPath())
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewServerRepo(db)
	if err := repo.EnsureSchema(); err != nil {
		log.Fatal(err)
	}
	runRepo := repository.NewRunRepo(db)
	if err := runRepo.EnsureSchema(); err != nil {
		log.Fatal(err)
	}
	writer := service.NewRunWriter(runRepo, cfg.HistoryFlushInterval, cfg.HistoryBatchSize)
	defer writer.Close()
	if cfg.HistoryRetentionDays > 0 || cfg.HistoryMaxRows > 0 {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				_ = runRepo.Cleanup(cfg.HistoryRetentionDays, cfg.HistoryMaxRows)
			}
		}()
	}
	svc := service.NewDispatchService(repo, writer, ssh.NewDialer(), cfg.MaxParallel, cfg.DefaultTimeout)
	api := httpapi.New(repo, runRepo, svc)
	log.Printf("scriptrunner listening on %s", cfg.Addr)
	if err := api.Serve(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
