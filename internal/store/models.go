package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

const (
	formsTable       = "forms"
	submissionsTable = "submissions"
)

// FormRecord is one stored form schema. A form has at most one published
// and one draft record per project.
type FormRecord struct {
	ID        uint   `gorm:"primaryKey"`
	ProjectID int64  `gorm:"not null;uniqueIndex:idx_forms_key"`
	XMLFormID string `gorm:"not null;uniqueIndex:idx_forms_key"`
	Draft     bool   `gorm:"not null;uniqueIndex:idx_forms_key"`
	Version   string `gorm:"not null"`
	Published bool   `gorm:"not null"`
	Fields    string `gorm:"type:text;not null"`
}

func (FormRecord) TableName() string { return formsTable }

// SubmissionRecord is one stored submission. Timestamps are Unix
// milliseconds in UTC, the representation pushed-down filters compare
// against.
type SubmissionRecord struct {
	ID                  uint    `gorm:"primaryKey"`
	FormID              uint    `gorm:"not null;uniqueIndex:idx_submissions_instance"`
	InstanceID          string  `gorm:"not null;uniqueIndex:idx_submissions_instance"`
	SubmitterID         int64   `gorm:"column:submitter_id;not null"`
	SubmitterName       string  `gorm:"not null"`
	SubmittedAtMillis   int64   `gorm:"column:created_at;not null;index"`
	EditedAtMillis      *int64  `gorm:"column:updated_at"`
	AttachmentsPresent  int64   `gorm:"not null"`
	AttachmentsExpected int64   `gorm:"not null"`
	Status              *string `gorm:"column:status"`
	ReviewState         *string `gorm:"column:review_state"`
	DeviceID            *string `gorm:"column:device_id"`
	Edits               int64   `gorm:"not null"`
	FormVersion         string  `gorm:"not null"`
	Content             string  `gorm:"not null"`
	Data                string  `gorm:"type:text;not null"`
}

func (SubmissionRecord) TableName() string { return submissionsTable }

// submissionColumns is the column order scanSubmission expects.
var submissionColumns = []string{
	"instance_id",
	"submitter_id",
	"submitter_name",
	"created_at",
	"updated_at",
	"attachments_present",
	"attachments_expected",
	"status",
	"review_state",
	"device_id",
	"edits",
	"form_version",
	"content",
	"data",
}

func newFormRecord(key FormKey, form *metadata.Form, published bool) (*FormRecord, error) {
	fields, err := json.Marshal(form.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields of form %q: %w", form.ID, err)
	}
	return &FormRecord{
		ProjectID: key.ProjectID,
		XMLFormID: key.XMLFormID,
		Draft:     key.Draft,
		Version:   form.Version,
		Published: published,
		Fields:    string(fields),
	}, nil
}

func (r *FormRecord) form() (*metadata.Form, error) {
	var fields []metadata.Field
	if err := json.Unmarshal([]byte(r.Fields), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields of form %q: %w", r.XMLFormID, err)
	}
	return &metadata.Form{ID: r.XMLFormID, Version: r.Version, Fields: fields}, nil
}

func newSubmissionRecord(formID uint, sub *submission.Submission) (*SubmissionRecord, error) {
	data := sub.Data
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission %q: %w", sub.InstanceID, err)
	}

	sys := sub.System
	rec := &SubmissionRecord{
		FormID:              formID,
		InstanceID:          sub.InstanceID,
		SubmitterID:         sys.SubmitterID,
		SubmitterName:       sys.SubmitterName,
		SubmittedAtMillis:   submission.Truncate(sys.SubmissionDate).UnixMilli(),
		AttachmentsPresent:  sys.AttachmentsPresent,
		AttachmentsExpected: sys.AttachmentsExpected,
		Status:              sys.Status,
		ReviewState:         sys.ReviewState,
		DeviceID:            sys.DeviceID,
		Edits:               sys.Edits,
		FormVersion:         sys.FormVersion,
		Content:             sub.Content.String(),
		Data:                string(encoded),
	}
	if sys.UpdatedAt != nil {
		edited := submission.Truncate(*sys.UpdatedAt).UnixMilli()
		rec.EditedAtMillis = &edited
	}
	return rec, nil
}

func (r *SubmissionRecord) submission() (*submission.Submission, error) {
	content, err := parseContent(r.Content)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(r.Data))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode submission %q: %w", r.InstanceID, err)
	}

	sub := &submission.Submission{
		InstanceID: r.InstanceID,
		Content:    content,
		Data:       data,
		System: submission.System{
			SubmitterID:         r.SubmitterID,
			SubmitterName:       r.SubmitterName,
			SubmissionDate:      time.UnixMilli(r.SubmittedAtMillis).UTC(),
			AttachmentsPresent:  r.AttachmentsPresent,
			AttachmentsExpected: r.AttachmentsExpected,
			Status:              r.Status,
			ReviewState:         r.ReviewState,
			DeviceID:            r.DeviceID,
			Edits:               r.Edits,
			FormVersion:         r.FormVersion,
		},
	}
	if r.EditedAtMillis != nil {
		edited := time.UnixMilli(*r.EditedAtMillis).UTC()
		sub.System.UpdatedAt = &edited
	}
	return sub, nil
}

func parseContent(s string) (submission.ContentState, error) {
	switch s {
	case "", "normal":
		return submission.ContentNormal, nil
	case "degraded":
		return submission.ContentDegraded, nil
	case "rootOnly":
		return submission.ContentRootOnly, nil
	}
	return submission.ContentNormal, fmt.Errorf("unknown content state %q", s)
}
