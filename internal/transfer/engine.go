package transfer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kadirbelkuyu/fbadapter/internal/adapter"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
	"github.com/kadirbelkuyu/fbadapter/pkg/progress"
)

// Opener returns a fresh adapter. Each worker opens its own, since an
// adapter serves one goroutine at a time.
type Opener func(ctx context.Context) (*adapter.Adapter, error)

type engine struct {
	openSource Opener
	openTarget Opener
	options    Options
}

func newEngine(openSource, openTarget Opener, options Options) *engine {
	return &engine{
		openSource: openSource,
		openTarget: openTarget,
		options:    options,
	}
}

func (e *engine) Execute(ctx context.Context) error {
	e.options.Logger.Info("Starting Firebird transfer...")

	source, err := e.openSource(ctx)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer source.Close()

	tables, err := e.describeTables(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to extract tables: %w", err)
	}

	if !e.options.DataOnly {
		if err := e.transferSchema(ctx, tables); err != nil {
			return fmt.Errorf("schema transfer failed: %w", err)
		}
	}

	if !e.options.SchemaOnly {
		if err := e.transferData(ctx, source, tables); err != nil {
			return fmt.Errorf("data transfer failed: %w", err)
		}
	}

	e.options.Logger.Info("Firebird transfer completed successfully.")
	return nil
}

func (e *engine) describeTables(ctx context.Context, source *adapter.Adapter) ([]schema.TableDescriptor, error) {
	names := e.options.Tables
	if len(names) == 0 {
		stored, err := source.Tables(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range stored {
			names = append(names, schema.Delimited(name))
		}
	}

	tables := make([]schema.TableDescriptor, 0, len(names))
	for _, name := range names {
		td, err := source.Table(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *td)
	}
	return tables, nil
}

func (e *engine) transferSchema(ctx context.Context, tables []schema.TableDescriptor) error {
	e.options.Logger.Info("Transferring schema...")

	target, err := e.openTarget(ctx)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer target.Close()

	defs := make([]schema.TableDefinition, len(tables))
	for i, td := range tables {
		defs[i] = schema.DefinitionFromDescriptor(td)
	}

	if err := target.Creator(ctx).CreateTables(ctx, defs); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	e.options.Logger.Info("Schema transfer completed.")
	return nil
}

func (e *engine) transferData(ctx context.Context, source *adapter.Adapter, tables []schema.TableDescriptor) error {
	e.options.Logger.Info("Transferring data...")

	counts := make([]int64, len(tables))
	totalRows := int64(0)
	for i, td := range tables {
		n, err := countRows(ctx, source, td.Name)
		if err != nil {
			return err
		}
		counts[i] = n
		totalRows += n
	}

	var bar *progress.Bar
	if e.options.Progress != nil {
		bar = progress.NewBarTo(e.options.Progress, totalRows, "Data transfer")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.options.ParallelWorkers)

	for i, td := range tables {
		if counts[i] == 0 {
			continue
		}
		td, rows := td, counts[i]

		g.Go(func() error {
			if err := e.copyTable(gctx, td, rows, bar); err != nil {
				e.options.Logger.Errorf("Table transfer failed for %s: %v", td.Name, err)
				return fmt.Errorf("table %s: %w", td.Name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	bar.Finish()
	if err != nil {
		return err
	}

	if err := e.syncKeys(ctx, tables); err != nil {
		return err
	}

	e.options.Logger.Info("Data transfer completed.")
	return nil
}

func (e *engine) copyTable(ctx context.Context, td schema.TableDescriptor, rows int64, bar *progress.Bar) error {
	source, err := e.openSource(ctx)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := e.openTarget(ctx)
	if err != nil {
		return err
	}
	defer target.Close()

	job := &DataTransferJob{
		Table:       td,
		RowCount:    rows,
		Source:      source,
		Target:      target,
		BatchSize:   e.options.BatchSize,
		ProgressBar: bar,
		Logger:      e.options.Logger,
	}
	return job.Execute(ctx)
}

// syncKeys moves every generated key past the copied rows.
func (e *engine) syncKeys(ctx context.Context, tables []schema.TableDescriptor) error {
	target, err := e.openTarget(ctx)
	if err != nil {
		return err
	}
	defer target.Close()

	for _, td := range tables {
		if len(td.PrimaryKeys) != 1 {
			continue
		}
		col, ok := td.Column(td.PrimaryKeys[0])
		if !ok || !schema.DetectAutoIncrement(col, 1) {
			continue
		}
		if err := target.SyncAutoIncrement(ctx, schema.Delimited(td.Name), schema.Delimited(col.Name)); err != nil {
			e.options.Logger.Warnf("Failed to sync key generator of %s: %v", td.Name, err)
		}
	}
	return nil
}

func countRows(ctx context.Context, a *adapter.Adapter, table string) (int64, error) {
	rs, err := a.Run(ctx, "SELECT COUNT(*) FROM "+schema.Delimited(table))
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	v, _ := rs.Scalar()
	n, _ := v.AsInt64()
	return n, nil
}
