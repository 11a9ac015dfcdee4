package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kadirbelkuyu/fbadapter/internal/adapter"
	"github.com/kadirbelkuyu/fbadapter/internal/config"
	"github.com/kadirbelkuyu/fbadapter/internal/database"
	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
	"github.com/kadirbelkuyu/fbadapter/internal/profiles"
	"github.com/kadirbelkuyu/fbadapter/internal/schema"
	"github.com/kadirbelkuyu/fbadapter/internal/transfer"
	"github.com/kadirbelkuyu/fbadapter/internal/ui/explorer"
	"github.com/kadirbelkuyu/fbadapter/pkg/logger"
)

// ConnectFunc opens an adapter for cfg. The returned release func closes
// everything the adapter holds.
type ConnectFunc func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*adapter.Adapter, func(), error)

// Service backs the command line workflows.
type Service struct {
	out     io.Writer
	connect ConnectFunc
}

func NewService() *Service {
	return NewServiceWith(os.Stdout, Connect)
}

func NewServiceWith(out io.Writer, connect ConnectFunc) *Service {
	return &Service{out: out, connect: connect}
}

// Connect opens a pooled connection and pins one adapter on it.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*adapter.Adapter, func(), error) {
	conn, err := database.NewConnection(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := adapter.Connect(ctx, conn, log)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		conn.Close()
	}, nil
}

// TransferRequest carries the transfer command's flags.
type TransferRequest struct {
	SchemaOnly bool
	DataOnly   bool
	Workers    int
	BatchSize  int
	Tables     []string
	Verbose    bool
}

func (s *Service) Transfer(ctx context.Context, sourceCfg, targetCfg *config.Config, req TransferRequest) error {
	if req.SchemaOnly && req.DataOnly {
		fmt.Fprintln(s.out, "Both schema-only and data-only were selected. Running a full transfer instead.")
		req.SchemaOnly = false
		req.DataOnly = false
	}

	log := logger.NewLogger(req.Verbose || sourceCfg.Adapter.Verbose)
	log.Info("Starting transfer...")

	service, err := transfer.NewService(sourceCfg, targetCfg, transfer.Options{
		SchemaOnly:      req.SchemaOnly,
		DataOnly:        req.DataOnly,
		ParallelWorkers: req.Workers,
		BatchSize:       req.BatchSize,
		Tables:          req.Tables,
		Logger:          log,
		Progress:        os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize transfer service: %w", err)
	}

	started := time.Now()
	if err := service.Execute(ctx); err != nil {
		return fmt.Errorf("transfer execution failed: %w", err)
	}

	log.Infof("Transfer completed in %s", time.Since(started).Round(time.Millisecond))
	return nil
}

// Tables prints the user tables and views of the database.
func (s *Service) Tables(ctx context.Context, cfg *config.Config, verbose bool) error {
	a, release, err := s.connect(ctx, cfg, logger.New(os.Stderr, verbose))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer release()

	extractor := a.Extractor(ctx)
	tables, err := extractor.Tables(ctx)
	if err != nil {
		return err
	}
	views, err := extractor.Views(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "\nTables on %s:\n", formatServerLabel(cfg))
	fmt.Fprintln(s.out, strings.Repeat("=", 36))
	for i, name := range tables {
		fmt.Fprintf(s.out, "%d. %s\n", i+1, name)
	}
	if len(views) > 0 {
		fmt.Fprintln(s.out, "\nViews:")
		for i, name := range views {
			fmt.Fprintf(s.out, "%d. %s\n", i+1, name)
		}
	}
	fmt.Fprintf(s.out, "\nTotal tables: %d\n", len(tables))
	return nil
}

// Describe prints one table with its columns, keys, indexes and constraints.
func (s *Service) Describe(ctx context.Context, cfg *config.Config, table string, verbose bool) error {
	a, release, err := s.connect(ctx, cfg, logger.New(os.Stderr, verbose))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer release()

	td, err := a.Table(ctx, table)
	if err != nil {
		return err
	}
	s.printTable(td)
	return nil
}

func (s *Service) printTable(td *schema.TableDescriptor) {
	fmt.Fprintf(s.out, "\nTable %s\n", td.Name)
	fmt.Fprintln(s.out, strings.Repeat("=", 36))
	for _, c := range td.Columns {
		var flags []string
		if c.IsPrimaryKey {
			flags = append(flags, "PK")
		}
		if c.IsIdentity {
			flags = append(flags, "IDENTITY")
		}
		if !c.Nullable {
			flags = append(flags, "NOT NULL")
		}
		if c.IsComputed && c.ComputedExpr != nil {
			flags = append(flags, "COMPUTED BY "+*c.ComputedExpr)
		}
		if c.HasDefault() {
			flags = append(flags, "DEFAULT "+displayValue(*c.DefaultExpr, "NULL"))
		}
		fmt.Fprintf(s.out, "  %-31s %-32s %s\n", c.Name, c.SQLType, strings.Join(flags, ", "))
	}

	if td.Sequence != "" {
		fmt.Fprintf(s.out, "\nSequence: %s\n", td.Sequence)
	}
	if len(td.Indexes) > 0 {
		fmt.Fprintln(s.out, "\nIndexes:")
		for _, idx := range td.Indexes {
			unique := ""
			if idx.IsUnique {
				unique = "UNIQUE "
			}
			fmt.Fprintf(s.out, "  %s%s (%s)\n", unique, idx.Name, strings.Join(idx.Columns, ", "))
		}
	}
	if len(td.ForeignKeys) > 0 {
		fmt.Fprintln(s.out, "\nForeign keys:")
		for _, fk := range td.ForeignKeys {
			fmt.Fprintf(s.out, "  %s (%s) -> %s (%s)\n", fk.Name, strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
		}
	}
	if len(td.Checks) > 0 {
		fmt.Fprintln(s.out, "\nChecks:")
		for _, chk := range td.Checks {
			fmt.Fprintf(s.out, "  %s %s\n", chk.Name, chk.Expression)
		}
	}
}

// Explore opens the interactive table browser. Statement logging is
// silenced while the terminal belongs to the UI.
func (s *Service) Explore(ctx context.Context, cfg *config.Config) error {
	fmt.Fprintf(s.out, "Connecting to %s...\n", formatServerLabel(cfg))
	a, release, err := s.connect(ctx, cfg, logger.New(io.Discard, false))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer release()

	return explorer.Run(ctx, a, formatServerLabel(cfg))
}

// Version prints the server version and the features it enables.
func (s *Service) Version(ctx context.Context, cfg *config.Config, verbose bool) error {
	a, release, err := s.connect(ctx, cfg, logger.New(os.Stderr, verbose))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer release()

	caps := a.Capabilities(ctx)
	fmt.Fprintf(s.out, "Firebird %s (%d)\n", caps.VersionString, caps.Version)
	features := []struct {
		name string
		on   bool
	}{
		{"identity columns", caps.IdentityColumns},
		{"boolean type", caps.BooleanType},
		{"time zones", caps.TimeZones},
		{"int128", caps.Int128},
		{"decfloat", caps.DecFloat},
		{"partial indexes", caps.PartialIndexes},
		{"skip locked", caps.SkipLocked},
	}
	for _, f := range features {
		fmt.Fprintf(s.out, "  %-18s %s\n", f.name, yesNo(f.on))
	}
	return nil
}

// Rewrite prints query with its pagination translated. Trailing args are
// bind values; integers are passed as numbers.
func (s *Service) Rewrite(query string, args []string) error {
	binds := make([]any, len(args))
	for i, arg := range args {
		if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
			binds[i] = n
			continue
		}
		binds[i] = arg
	}

	result, err := dialect.RewriteWithArgs(query, binds)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, result.SQL)
	if len(result.Args) > 0 {
		fmt.Fprintf(s.out, "-- binds: %v\n", result.Args)
	}
	return nil
}

// Profiles prints the saved connection profiles.
func (s *Service) Profiles(manager *profiles.Manager) error {
	list, err := manager.List("")
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(s.out, "No profiles in %s\n", manager.Directory())
		return nil
	}
	for _, p := range list {
		fmt.Fprintf(s.out, "%-20s %-10s %s\n", p.Name, p.Type, p.Target)
	}
	return nil
}

func formatServerLabel(cfg *config.Config) string {
	host := strings.TrimSpace(cfg.Database.Host)
	if host == "" {
		host = "localhost"
	}

	if cfg.Database.Port > 0 {
		return fmt.Sprintf("%s:%d/%s", host, cfg.Database.Port, cfg.Database.Database)
	}

	return host + "/" + cfg.Database.Database
}

func displayValue(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
