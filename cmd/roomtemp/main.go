// Package main provides the roomtemp binary: a command-line front end to the
// encrypted settings store and the gRPC connection to the tempgrpcd service.
//
// Every invocation:
//  1. Loads configuration from defaults and ROOMTEMP_* environment variables.
//  2. Opens (and migrates) the SQLite database under the data directory.
//  3. Opens the key custodian on the configured secure-storage backend.
//  4. Runs one command against the app service, then flushes metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/roomtemp/internal/app"
	"github.com/haukened/roomtemp/internal/config"
	"github.com/haukened/roomtemp/internal/grpcx"
	"github.com/haukened/roomtemp/internal/keystore"
	"github.com/haukened/roomtemp/internal/metrics"
	"github.com/haukened/roomtemp/internal/store"
	"github.com/haukened/roomtemp/internal/store/sqlite"
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// runtime holds everything a command needs. It is built lazily so `--help`
// never touches the database or the keyring.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	metrics *metrics.Manager
	conns   *grpcx.Manager
	svc     *app.Service
}

// newManager builds the connection manager; tests swap it to trust a local CA.
var newManager = grpcx.NewManager

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("invocation", uuid.NewString())
}

func ensureDataDir(dir string) error {
	st, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.MkdirAll(dir, 0o700)
	case err != nil:
		return err
	case !st.IsDir():
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}

func openDatabase(cfg *config.Config) (*sql.DB, *sqlite.Repository, error) {
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := sqlite.New(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, repo, nil
}

func openCustodian(cfg *config.Config, logger *slog.Logger) (*keystore.Custodian, error) {
	backend, err := keystore.NewBackend(cfg.KeyBackend, cfg.KeyPath())
	if err != nil {
		return nil, err
	}
	return keystore.New(backend, cfg.ServiceName, logger)
}

func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	if err := ensureDataDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	db, repo, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	keys, err := openCustodian(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mm := metrics.New(db, metrics.Config{FlushInterval: cfg.MetricsFlush, Logger: logger})
	if err := mm.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metrics schema: %w", err)
	}
	mm.Start(ctx)

	conns := newManager(grpcx.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		CallTimeout:    cfg.CallTimeout,
		Logger:         logger,
	})
	svc := &app.Service{
		Store:   store.New(repo, keys),
		Conn:    app.ManagerConnector{Manager: conns},
		Clock:   realClock{},
		Metrics: mm,
		Logger:  logger.With("domain", "app"),
	}
	logger.Debug("runtime ready", "data_dir", cfg.DataDir, "key_backend", cfg.KeyBackend)
	return &runtime{cfg: cfg, logger: logger, db: db, metrics: mm, conns: conns, svc: svc}, nil
}

func (r *runtime) Close() {
	r.conns.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.metrics.Stop(ctx); err != nil {
		r.logger.Warn("metrics flush", "err", err)
	}
	if err := r.db.Close(); err != nil {
		r.logger.Warn("close database", "err", err)
	}
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 2
	}
	logger := newLogger(stderr, cfg.LogLevel)
	root := newRootCmd(cfg, logger)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Debug("command failed", "err", err)
		msg := app.Describe(err)
		if msg == app.UnexpectedMessage {
			// usage and flag errors from cobra
			msg = err.Error()
		}
		fmt.Fprintf(stderr, "error: %s\n", msg)
		return 1
	}
	return 0
}

func main() {
	// the default logger is used until the configured one exists
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
