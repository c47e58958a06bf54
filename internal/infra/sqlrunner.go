package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface shared by repositories and the credentials store.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrMissingMarker is returned for queries without a leading `--sql <uuid>` line.
var ErrMissingMarker = errors.New("sql marker missing or invalid")

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner executes marked inline queries against the pool and logs each call
// under its marker so slow or failing statements can be traced back to source.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := SplitMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.Pool.Exec(ctx, body, args...)
	r.log(marker, "exec", start, err).Int64("rows", tag.RowsAffected()).Send()
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := SplitMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &loggingRow{
		row:    r.Pool.QueryRow(ctx, body, args...),
		runner: r,
		marker: marker,
		start:  time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := SplitMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.Pool.Query(ctx, body, args...)
	r.log(marker, "query", start, err).Send()
	return rows, err
}

func (r *SQLRunner) log(marker, op string, start time.Time, err error) *zerolog.Event {
	var ev *zerolog.Event
	if err != nil && !IsNoRows(err) {
		ev = r.Logger.Error().Err(err)
	} else {
		ev = r.Logger.Debug()
	}
	return ev.Str("sql", marker).Str("op", op).Dur("took", time.Since(start))
}

type loggingRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (l *loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.log(l.marker, "query_row", l.start, err).Send()
	return err
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// SplitMarker validates the marker line and returns it along with the SQL body.
func SplitMarker(query string) (marker, body string, err error) {
	trimmed := strings.TrimSpace(query)
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrMissingMarker
	}
	return strings.TrimPrefix(first, "--sql "), rest, nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
