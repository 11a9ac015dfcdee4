package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/kadirbelkuyu/fbadapter/internal/adapter"
	"github.com/kadirbelkuyu/fbadapter/internal/config"
	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

const (
	DefaultParallelWorkers = 4
	DefaultBatchSize       = 1000
)

type Options struct {
	SchemaOnly      bool
	DataOnly        bool
	ParallelWorkers int
	BatchSize       int
	// Tables limits the transfer to these tables. Empty means all.
	Tables []string
	Logger *logger.Logger
	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
}

type Service struct {
	sourceConfig *config.Config
	targetConfig *config.Config
	options      Options
}

func NewService(sourceConfig, targetConfig *config.Config, options Options) (*Service, error) {
	sourceType := sourceConfig.Database.Type
	targetType := targetConfig.Database.Type

	if sourceType != targetType {
		return nil, fmt.Errorf("cross-engine transfers are not supported between %s and %s", sourceType, targetType)
	}
	if sourceType != "firebird" {
		return nil, fmt.Errorf("unsupported database type: %s", sourceType)
	}
	if options.SchemaOnly && options.DataOnly {
		return nil, fmt.Errorf("schema-only and data-only are mutually exclusive")
	}

	if options.ParallelWorkers <= 0 {
		options.ParallelWorkers = DefaultParallelWorkers
	}
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}

	return &Service{
		sourceConfig: sourceConfig,
		targetConfig: targetConfig,
		options:      options,
	}, nil
}

func (s *Service) Execute(ctx context.Context) error {
	log := s.options.Logger

	log.Info("Connecting to source database...")
	sourceConn, err := database.NewConnection(s.sourceConfig)
	if err != nil {
		return fmt.Errorf("source database connection: %w", err)
	}
	defer sourceConn.Close()

	log.Info("Connecting to target database...")
	targetConn, err := database.NewConnection(s.targetConfig)
	if err != nil {
		return fmt.Errorf("target database connection: %w", err)
	}
	defer targetConn.Close()

	e := newEngine(opener(sourceConn, log), opener(targetConn, log), s.options)
	return e.Execute(ctx)
}

// opener hands out a new adapter on its own pinned connection per call.
func opener(conn *database.Connection, log *logger.Logger) Opener {
	return func(ctx context.Context) (*adapter.Adapter, error) {
		return adapter.Connect(ctx, conn, log)
	}
}
