package service

import (
	"sync"
	"time"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
	"github.com/QingMing-Bot/scriptrunner/internal/repository"
)

// RunWriter 异步批量写执行记录。通道满时退化为同步插入，保证记录不丢。
type RunWriter struct {
	repo          repository.RunRepoIface
	ch            chan domain.RunRecord
	stop          chan struct{}
	flushInterval time.Duration
	batchSize     int
	wg            sync.WaitGroup
}

func NewRunWriter(repo repository.RunRepoIface, flushSec int, batchSize int) *RunWriter {
	if flushSec <= 0 {
		flushSec = 2
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	w := &RunWriter{repo: repo, ch: make(chan domain.RunRecord, batchSize*4), stop: make(chan struct{}), flushInterval: time.Duration(flushSec) * time.Second, batchSize: batchSize}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *RunWriter) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	batch := make([]domain.RunRecord, 0, w.batchSize)
	flush := func() {
		for i := range batch {
			rec := batch[i]
			_ = w.repo.Insert(&rec)
		}
		batch = batch[:0]
	}
	for {
		select {
		case rec := <-w.ch:
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush()
			}
		case <-w.stop:
			// 排空通道后再退出
			for {
				select {
				case rec := <-w.ch:
					batch = append(batch, rec)
				default:
					if len(batch) > 0 {
						flush()
					}
					return
				}
			}
		}
	}
}

func (w *RunWriter) Write(rec domain.RunRecord) {
	select {
	case w.ch <- rec:
	default:
		// 背压：直接同步写，不丢记录
		_ = w.repo.Insert(&rec)
	}
}

func (w *RunWriter) Close() { close(w.stop); w.wg.Wait() }
