// Package repository reads and maintains the audit log written by the
// workers.
package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// LogStore is the audit log as seen by the gateway.
type LogStore interface {
	Query(ctx context.Context, f query.LogFilter) ([]model.LogItem, error)
	// ListCorrelationIDs returns the distinct correlation ids that have log
	// entries of logItemType, or of any type when it is empty.
	ListCorrelationIDs(ctx context.Context, logItemType model.LogItemType) ([]string, error)
	ListCatalogers(ctx context.Context) ([]string, error)
	// ListExpanded aggregates entries per job and type.
	ListExpanded(ctx context.Context, f query.LogListFilter) ([]model.LogListEntry, error)
	// Protect toggles the protected flag of a job's entries, or of the single
	// entry at blobSequence when it is positive.
	Protect(ctx context.Context, correlationID string, blobSequence int) (int64, error)
	// Remove deletes a job's entries. Protected entries survive unless force
	// is set.
	Remove(ctx context.Context, correlationID string, force bool) (int64, error)
}

// LogRepository is the PostgreSQL LogStore.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository constructs a repository.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

const logColumns = `correlation_id, log_item_type, blob_sequence, standard_identifiers,
	COALESCE(database_id, ''), source_ids, COALESCE(cataloger, ''), protected, content, created_at, updated_at`

// Query returns the entries matching f ordered by job and sequence.
func (r *LogRepository) Query(ctx context.Context, f query.LogFilter) ([]model.LogItem, error) {
	sql, args := buildLogQuery(f)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query log items")
	}
	defer rows.Close()

	var out []model.LogItem
	for rows.Next() {
		var (
			item    model.LogItem
			content []byte
		)
		if err := rows.Scan(&item.CorrelationID, &item.LogItemType, &item.BlobSequence, &item.StandardIdentifiers,
			&item.DatabaseID, &item.SourceIDs, &item.Cataloger, &item.Protected, &content,
			&item.CreationTime, &item.ModificationTime); err != nil {
			return nil, errors.Wrap(err, "scan log item")
		}
		if len(content) > 0 {
			item.Content = content
		}
		out = append(out, item)
	}
	return out, errors.Wrap(rows.Err(), "iterate log items")
}

// ListCorrelationIDs returns distinct correlation ids.
func (r *LogRepository) ListCorrelationIDs(ctx context.Context, logItemType model.LogItemType) ([]string, error) {
	sql := `SELECT DISTINCT correlation_id FROM log_items`
	var args []interface{}
	if logItemType != "" {
		sql += ` WHERE log_item_type = $1`
		args = append(args, string(logItemType))
	}
	return r.distinct(ctx, sql+` ORDER BY correlation_id`, args...)
}

// ListCatalogers returns the distinct catalogers that have log entries.
func (r *LogRepository) ListCatalogers(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT cataloger FROM log_items WHERE cataloger IS NOT NULL AND cataloger <> '' ORDER BY cataloger`)
}

// ListExpanded aggregates entries per job and type.
func (r *LogRepository) ListExpanded(ctx context.Context, f query.LogListFilter) ([]model.LogListEntry, error) {
	sql, args := buildExpandedQuery(f)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list log items")
	}
	defer rows.Close()

	var out []model.LogListEntry
	for rows.Next() {
		var e model.LogListEntry
		if err := rows.Scan(&e.CorrelationID, &e.LogItemType, &e.Cataloger, &e.LogCount, &e.CreationTime); err != nil {
			return nil, errors.Wrap(err, "scan log listing")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate log listing")
}

// Protect toggles the protected flag.
func (r *LogRepository) Protect(ctx context.Context, correlationID string, blobSequence int) (int64, error) {
	sql := `UPDATE log_items SET protected = NOT protected, updated_at = now() WHERE correlation_id = $1`
	args := []interface{}{correlationID}
	if blobSequence > 0 {
		sql += ` AND blob_sequence = $2`
		args = append(args, blobSequence)
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "protect logs of %s", correlationID)
	}
	return tag.RowsAffected(), nil
}

// Remove deletes entries.
func (r *LogRepository) Remove(ctx context.Context, correlationID string, force bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM log_items WHERE correlation_id = $1 AND ($2 OR NOT protected)`, correlationID, force)
	if err != nil {
		return 0, errors.Wrapf(err, "remove logs of %s", correlationID)
	}
	return tag.RowsAffected(), nil
}

func (r *LogRepository) distinct(ctx context.Context, sql string, args ...interface{}) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query log items")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return out, errors.Wrap(err, "collect log items")
}

type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func buildLogQuery(f query.LogFilter) (string, []interface{}) {
	var w whereBuilder
	if f.CorrelationID != "" {
		w.add("correlation_id = ?", f.CorrelationID)
	}
	if f.LogItemType != "" {
		w.add("log_item_type = ?", string(f.LogItemType))
	}
	if f.BlobSequenceStart > 0 {
		w.add("blob_sequence >= ?", f.BlobSequenceStart)
	}
	if f.BlobSequenceEnd > 0 {
		w.add("blob_sequence <= ?", f.BlobSequenceEnd)
	}
	if f.StandardIdentifier != "" {
		w.add("? = ANY(standard_identifiers)", f.StandardIdentifier)
	}
	if f.DatabaseID != "" {
		w.add("database_id = ?", f.DatabaseID)
	}
	if f.SourceID != "" {
		w.add("? = ANY(source_ids)", f.SourceID)
	}

	sql := `SELECT ` + logColumns + ` FROM log_items` + w.String() + ` ORDER BY correlation_id, blob_sequence`
	args := w.args
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Skip > 0 {
		args = append(args, f.Skip)
		sql += ` OFFSET $` + strconv.Itoa(len(args))
	}
	return sql, args
}

func buildExpandedQuery(f query.LogListFilter) (string, []interface{}) {
	var w whereBuilder
	types := make([]string, 0, len(f.LogItemTypes))
	for _, t := range f.LogItemTypes {
		types = append(types, string(t))
	}
	w.add("log_item_type = ANY(?)", types)
	w.add("created_at >= ?", f.DateAfter)
	w.add("created_at <= ?", f.DateBefore)
	if len(f.Catalogers) > 0 {
		w.add("cataloger = ANY(?)", f.Catalogers)
	}
	sql := `SELECT correlation_id, log_item_type, COALESCE(cataloger, ''), COUNT(*), MIN(created_at)
	FROM log_items` + w.String() + `
	GROUP BY correlation_id, log_item_type, cataloger
	ORDER BY MIN(created_at)`
	return sql, w.args
}
