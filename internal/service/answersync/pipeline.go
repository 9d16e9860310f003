package answersync

import (
	"context"
	"fmt"
)

// Pipeline связывает компоненты конвейера: приём -> сверка -> пакетная запись
type Pipeline struct {
	Ingestor    *Ingestor
	Reconciler  *Reconciler
	BatchWriter *BatchWriter
	Statistics  *Statistics
}

// NewPipeline собирает конвейер из конфигурации и зависимостей
func NewPipeline(cfg *Config, deps Dependencies) *Pipeline {
	writer := NewBatchWriter(cfg, deps)
	reconciler := NewReconciler(cfg, deps, writer)
	return &Pipeline{
		Ingestor:    NewIngestor(cfg, deps, reconciler, writer),
		Reconciler:  reconciler,
		BatchWriter: writer,
		Statistics:  NewStatistics(cfg, deps),
	}
}

// Start запускает фоновые воркеры
func (p *Pipeline) Start(ctx context.Context) {
	p.BatchWriter.Start(ctx)
	p.Reconciler.Start(ctx)
}

// Stop останавливает сверку, затем пакетную запись, чтобы досрочно сверенные записи успели сохраниться
func (p *Pipeline) Stop(ctx context.Context) error {
	if err := p.Reconciler.Stop(ctx); err != nil {
		return fmt.Errorf("stop reconciler: %w", err)
	}
	if err := p.BatchWriter.Stop(ctx); err != nil {
		return fmt.Errorf("stop batch writer: %w", err)
	}
	return nil
}
