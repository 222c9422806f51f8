// Package store persists forms and submissions with gorm and serves them to
// the feed as a source.Source, pushing $filter conditions down into SQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nlstn/go-odata-forms/internal/filter"
	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/source"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

// FormKey identifies a form's published or draft schema within a project.
type FormKey struct {
	ProjectID int64
	XMLFormID string
	Draft     bool
}

// Store keeps forms and submissions in a SQL database.
type Store struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	dialect string
	logger  *slog.Logger
}

// Open connects to a sqlite or postgres database and migrates its tables.
func Open(dialect, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case filter.DialectSQLite:
		dialector = sqlite.Open(dsn)
	case filter.DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == filter.DialectSQLite && strings.Contains(dsn, ":memory:") {
		// every connection to an in-memory database sees its own database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an open gorm connection and migrates its tables.
func New(db *gorm.DB) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := db.AutoMigrate(&FormRecord{}, &SubmissionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	return &Store{
		db:      db,
		sqlDB:   sqlDB,
		dialect: db.Dialector.Name(),
		logger:  slog.Default(),
	}, nil
}

// SetLogger sets the logger used for query tracing.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Dialect returns the name of the underlying database dialect.
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// SaveForm creates or replaces the schema stored under key.
func (s *Store) SaveForm(ctx context.Context, key FormKey, form *metadata.Form, published bool) error {
	return saveForm(s.db.WithContext(ctx), key, form, published)
}

// SaveSubmission stores sub for the form under key.
func (s *Store) SaveSubmission(ctx context.Context, key FormKey, sub *submission.Submission) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findForm(tx, key)
		if err != nil {
			return err
		}
		return saveSubmission(tx, rec.ID, sub)
	})
}

func saveForm(db *gorm.DB, key FormKey, form *metadata.Form, published bool) error {
	rec, err := newFormRecord(key, form, published)
	if err != nil {
		return err
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "xml_form_id"}, {Name: "draft"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "published", "fields"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save form %q: %w", key.XMLFormID, err)
	}
	return nil
}

func saveSubmission(db *gorm.DB, formID uint, sub *submission.Submission) error {
	rec, err := newSubmissionRecord(formID, sub)
	if err != nil {
		return err
	}
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save submission %q: %w", sub.InstanceID, err)
	}
	return nil
}

func findForm(db *gorm.DB, key FormKey) (*FormRecord, error) {
	var rec FormRecord
	err := db.Where("project_id = ? AND xml_form_id = ? AND draft = ?", key.ProjectID, key.XMLFormID, key.Draft).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, problem.ErrSchemaUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %q: %w", key.XMLFormID, err)
	}
	return &rec, nil
}

// Source returns the submissions feed of the form under key.
func (s *Store) Source(key FormKey) *FormSource {
	return &FormSource{store: s, key: key}
}

// FormSource serves one stored form and its submissions.
type FormSource struct {
	store *Store
	key   FormKey
}

var _ source.Source = (*FormSource)(nil)

// Form returns the stored schema. Published forms that have not been
// published yet have no schema.
func (fs *FormSource) Form(ctx context.Context) (*metadata.Form, error) {
	rec, err := findForm(fs.store.db.WithContext(ctx), fs.key)
	if err != nil {
		return nil, err
	}
	if !fs.key.Draft && !rec.Published {
		return nil, problem.ErrSchemaUnavailable
	}
	return rec.form()
}

// Submissions loads the form's submissions newest first, narrowed in SQL
// by the request's instance ID and filter.
func (fs *FormSource) Submissions(ctx context.Context, req source.Request) ([]*submission.Submission, error) {
	rec, err := findForm(fs.store.db.WithContext(ctx), fs.key)
	if err != nil {
		return nil, err
	}

	qb := newQueryBuilder(fs.store.sqlDB, fs.store.dialect).
		WithLogger(fs.store.logger).
		WithTable(submissionsTable).
		Select(submissionColumns...).
		Where("form_id = ?", rec.ID)
	if req.InstanceID != "" {
		qb.Where("instance_id = ?", req.InstanceID)
	}
	filterScope, err := req.Filter.Scope(fs.store.dialect)
	if err != nil {
		return nil, err
	}
	qb.WhereScope(filterScope).
		OrderBy("created_at DESC").
		OrderBy("instance_id DESC")

	rows, err := qb.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			fs.store.logger.Error("Error closing rows", "error", closeErr)
		}
	}()
	return scanSubmissions(rows)
}

func scanSubmissions(rows *sql.Rows) ([]*submission.Submission, error) {
	var subs []*submission.Submission
	for rows.Next() {
		var rec SubmissionRecord
		err := rows.Scan(
			&rec.InstanceID,
			&rec.SubmitterID,
			&rec.SubmitterName,
			&rec.SubmittedAtMillis,
			&rec.EditedAtMillis,
			&rec.AttachmentsPresent,
			&rec.AttachmentsExpected,
			&rec.Status,
			&rec.ReviewState,
			&rec.DeviceID,
			&rec.Edits,
			&rec.FormVersion,
			&rec.Content,
			&rec.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		sub, err := rec.submission()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}
	return subs, nil
}
