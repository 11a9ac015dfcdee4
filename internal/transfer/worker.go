package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/fbadapter/internal/adapter"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
	"github.com/kadirbelkuyu/fbadapter/pkg/progress"
)

// DataTransferJob copies one table in primary key order, one batch per
// target transaction.
type DataTransferJob struct {
	Table       schema.TableDescriptor
	RowCount    int64
	Source      *adapter.Adapter
	Target      *adapter.Adapter
	BatchSize   int
	ProgressBar *progress.Bar
	Logger      *logger.Logger
}

func (dt *DataTransferJob) Execute(ctx context.Context) error {
	dt.Logger.Infof("Starting table transfer: %s (%d rows)", dt.Table.Name, dt.RowCount)

	columns := dt.copyableColumns()
	if len(columns) == 0 {
		dt.Logger.Warnf("Table %s has no copyable columns", dt.Table.Name)
		return nil
	}
	selectQuery := dt.buildSelectQuery(columns)
	insertQuery := dt.buildInsertQuery(columns)

	offset := int64(0)
	batchSize := int64(dt.BatchSize)

	for offset < dt.RowCount {
		limit := batchSize
		if offset+limit > dt.RowCount {
			limit = dt.RowCount - offset
		}

		copied, err := dt.transferBatch(ctx, selectQuery, insertQuery, offset, limit)
		if err != nil {
			return fmt.Errorf("batch transfer failed: %w", err)
		}

		dt.ProgressBar.IncrementBy(copied)
		if copied < limit {
			break
		}
		offset += limit
	}

	dt.Logger.Infof("Table transfer completed: %s", dt.Table.Name)
	return nil
}

func (dt *DataTransferJob) transferBatch(ctx context.Context, selectQuery, insertQuery string, offset, limit int64) (int64, error) {
	rs, err := dt.Source.Select(ctx, selectQuery, &limit, &offset)
	if err != nil {
		return 0, fmt.Errorf("failed to query source data: %w", err)
	}

	err = dt.Target.Transaction(ctx, func(ctx context.Context) error {
		for _, row := range rs.Rows {
			args := make([]any, len(row))
			for i, v := range row {
				args[i] = v
			}
			if _, err := dt.Target.Run(ctx, insertQuery, args...); err != nil {
				return fmt.Errorf("failed to insert row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rs.Rows)), nil
}

// copyableColumns skips computed columns, which the engine derives itself.
func (dt *DataTransferJob) copyableColumns() []schema.ColumnDescriptor {
	columns := make([]schema.ColumnDescriptor, 0, len(dt.Table.Columns))
	for _, col := range dt.Table.Columns {
		if col.IsComputed {
			continue
		}
		columns = append(columns, col)
	}
	return columns
}

func (dt *DataTransferJob) buildSelectQuery(columns []schema.ColumnDescriptor) string {
	return fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY %s",
		columnList(columns),
		schema.Delimited(dt.Table.Name),
		dt.buildOrderByClause(columns),
	)
}

// buildInsertQuery upserts on the primary key so a rerun does not fail on
// rows copied before. GENERATED ALWAYS identity columns need an explicit
// override to accept the copied keys.
func (dt *DataTransferJob) buildInsertQuery(columns []schema.ColumnDescriptor) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	for _, col := range columns {
		if strings.Contains(col.SQLType, "GENERATED ALWAYS") {
			return fmt.Sprintf(
				"INSERT INTO %s (%s) OVERRIDING SYSTEM VALUE VALUES (%s)",
				schema.Delimited(dt.Table.Name),
				columnList(columns),
				placeholders,
			)
		}
	}

	if len(dt.Table.PrimaryKeys) == 0 {
		return fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			schema.Delimited(dt.Table.Name),
			columnList(columns),
			placeholders,
		)
	}

	pkCols := make([]string, len(dt.Table.PrimaryKeys))
	for i, pk := range dt.Table.PrimaryKeys {
		pkCols[i] = schema.Delimited(pk)
	}
	return fmt.Sprintf(
		"UPDATE OR INSERT INTO %s (%s) VALUES (%s) MATCHING (%s)",
		schema.Delimited(dt.Table.Name),
		columnList(columns),
		placeholders,
		strings.Join(pkCols, ", "),
	)
}

func (dt *DataTransferJob) buildOrderByClause(columns []schema.ColumnDescriptor) string {
	if len(dt.Table.PrimaryKeys) > 0 {
		pkCols := make([]string, len(dt.Table.PrimaryKeys))
		for i, pk := range dt.Table.PrimaryKeys {
			pkCols[i] = schema.Delimited(pk)
		}
		return strings.Join(pkCols, ", ")
	}

	return schema.Delimited(columns[0].Name)
}

func columnList(columns []schema.ColumnDescriptor) string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = schema.Delimited(col.Name)
	}
	return strings.Join(names, ", ")
}
