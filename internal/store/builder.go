package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlstn/go-odata-forms/internal/filter"
	"github.com/nlstn/go-odata-forms/internal/scope"
)

// queryBuilder accumulates the clauses of a single-table SELECT and renders
// them for the store's dialect.
type queryBuilder struct {
	db       *sql.DB
	dialect  string
	table    string
	wheres   []whereClause
	selects  []string
	orderBys []string
	logger   *slog.Logger
}

// whereClause represents a SQL condition with parameterized arguments
type whereClause struct {
	sql  string
	args []interface{}
}

func newQueryBuilder(db *sql.DB, dialect string) *queryBuilder {
	return &queryBuilder{
		db:      db,
		dialect: dialect,
		logger:  slog.Default(),
	}
}

// WithTable sets the target table for the query
func (qb *queryBuilder) WithTable(table string) *queryBuilder {
	qb.table = table
	return qb
}

// Where adds a WHERE condition to the query
func (qb *queryBuilder) Where(sql string, args ...interface{}) *queryBuilder {
	qb.wheres = append(qb.wheres, whereClause{sql: sql, args: args})
	return qb
}

// WhereScope adds a pushed-down scope. Empty scopes add nothing.
func (qb *queryBuilder) WhereScope(s scope.QueryScope) *queryBuilder {
	if s.IsEmpty() {
		return qb
	}
	return qb.Where("("+s.Condition+")", s.Args...)
}

// Select sets the SELECT columns for the query
func (qb *queryBuilder) Select(cols ...string) *queryBuilder {
	qb.selects = append(qb.selects, cols...)
	return qb
}

// OrderBy adds an ORDER BY clause to the query
func (qb *queryBuilder) OrderBy(order string) *queryBuilder {
	qb.orderBys = append(qb.orderBys, order)
	return qb
}

// WithLogger sets the logger used for query tracing
func (qb *queryBuilder) WithLogger(logger *slog.Logger) *queryBuilder {
	qb.logger = logger
	return qb
}

// ToSQL renders the query and its arguments.
func (qb *queryBuilder) ToSQL() (string, []interface{}) {
	var sql strings.Builder
	var args []interface{}

	sql.WriteString("SELECT ")
	if len(qb.selects) > 0 {
		sql.WriteString(strings.Join(qb.selects, ", "))
	} else {
		sql.WriteString("*")
	}

	if qb.table != "" {
		sql.WriteString(" FROM ")
		sql.WriteString(quoteTableName(qb.dialect, qb.table))
	}

	if len(qb.wheres) > 0 {
		sql.WriteString(" WHERE ")
		whereClauses := make([]string, 0, len(qb.wheres))
		for _, w := range qb.wheres {
			whereClauses = append(whereClauses, w.sql)
			args = append(args, w.args...)
		}
		sql.WriteString(strings.Join(whereClauses, " AND "))
	}

	if len(qb.orderBys) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(qb.orderBys, ", "))
	}

	query := sql.String()
	if qb.dialect == filter.DialectPostgres {
		query = convertToPostgresPlaceholders(query)
	}
	return query, args
}

// QueryContext executes the query and returns the result rows
func (qb *queryBuilder) QueryContext(ctx context.Context) (*sql.Rows, error) {
	query, args := qb.ToSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing query", "sql", query, "args", args)
	}

	return qb.db.QueryContext(ctx, query, args...)
}

func quoteTableName(dialect, table string) string {
	if dialect == filter.DialectPostgres || dialect == filter.DialectSQLite {
		return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	}
	return table
}

// convertToPostgresPlaceholders converts ? placeholders to $1, $2, ... for
// PostgreSQL. Question marks inside single-quoted literals are left alone.
func convertToPostgresPlaceholders(query string) string {
	var result strings.Builder
	placeholderNum := 1
	quoted := false

	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == '\'':
			quoted = !quoted
			result.WriteByte(query[i])
		case query[i] == '?' && !quoted:
			result.WriteString(fmt.Sprintf("$%d", placeholderNum))
			placeholderNum++
		default:
			result.WriteByte(query[i])
		}
	}

	return result.String()
}
