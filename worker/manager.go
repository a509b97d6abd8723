package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Worker is a long-running loop. Start blocks until ctx is done.
type Worker interface {
	Start(ctx context.Context) error
}

// Manager starts and supervises a set of workers. The first worker to fail
// stops the others.
type Manager struct {
	workers []Worker
	log     *slog.Logger
}

func NewManager(ws ...Worker) *Manager {
	return &Manager{workers: ws, log: slog.Default()}
}

func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, w := range m.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			name := fmt.Sprintf("%T", w)
			m.log.Debug("worker: started", "worker", name)
			if err := w.Start(ctx); err != nil {
				m.log.Error("worker: exited with error", "worker", name, "error", err)
				once.Do(func() {
					firstErr = fmt.Errorf("%s: %w", name, err)
					cancel()
				})
				return
			}
			m.log.Debug("worker: stopped", "worker", name)
		}(w)
	}
	// Wait for cancellation (or a failed worker) then for every worker to exit.
	<-ctx.Done()
	wg.Wait()
	return firstErr
}
