package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

// Fixture is the JSON document ImportFixture loads.
type Fixture struct {
	Forms []FixtureForm `json:"forms"`
}

// FixtureForm is a form schema with its submissions. Published defaults to
// true.
type FixtureForm struct {
	ProjectID   int64               `json:"projectId"`
	XMLFormID   string              `json:"xmlFormId"`
	Version     string              `json:"version"`
	Draft       bool                `json:"draft"`
	Published   *bool               `json:"published"`
	Fields      []metadata.Field    `json:"fields"`
	Submissions []FixtureSubmission `json:"submissions"`
}

// FixtureSubmission is one submission of a FixtureForm. A missing instance
// ID gets a generated uuid: ID and a missing date the import time.
type FixtureSubmission struct {
	InstanceID          string         `json:"instanceId"`
	SubmitterID         int64          `json:"submitterId"`
	SubmitterName       string         `json:"submitterName"`
	SubmissionDate      *time.Time     `json:"submissionDate"`
	UpdatedAt           *time.Time     `json:"updatedAt"`
	AttachmentsPresent  int64          `json:"attachmentsPresent"`
	AttachmentsExpected int64          `json:"attachmentsExpected"`
	Status              *string        `json:"status"`
	ReviewState         *string        `json:"reviewState"`
	DeviceID            *string        `json:"deviceId"`
	Edits               int64          `json:"edits"`
	FormVersion         string         `json:"formVersion"`
	Content             string         `json:"content"`
	Data                map[string]any `json:"data"`
}

// ImportSummary counts what ImportFixture stored.
type ImportSummary struct {
	Forms       int
	Submissions int
}

// ImportFixture reads a Fixture from r and stores it in one transaction.
func (s *Store) ImportFixture(ctx context.Context, r io.Reader) (ImportSummary, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var fixture Fixture
	if err := dec.Decode(&fixture); err != nil {
		return ImportSummary{}, fmt.Errorf("failed to decode fixture: %w", err)
	}

	var summary ImportSummary
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, f := range fixture.Forms {
			if f.XMLFormID == "" {
				return fmt.Errorf("fixture form in project %d has no xmlFormId", f.ProjectID)
			}
			key := FormKey{ProjectID: f.ProjectID, XMLFormID: f.XMLFormID, Draft: f.Draft}
			published := f.Published == nil || *f.Published
			form := &metadata.Form{ID: f.XMLFormID, Version: f.Version, Fields: f.Fields}
			if err := saveForm(tx, key, form, published); err != nil {
				return err
			}
			rec, err := findForm(tx, key)
			if err != nil {
				return err
			}
			summary.Forms++

			for _, fs := range f.Submissions {
				sub, err := fs.submission(f.Version, now)
				if err != nil {
					return err
				}
				if err := saveSubmission(tx, rec.ID, sub); err != nil {
					return err
				}
				summary.Submissions++
			}
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}

	s.logger.Info("Imported fixture", "forms", summary.Forms, "submissions", summary.Submissions)
	return summary, nil
}

func (fs FixtureSubmission) submission(formVersion string, now time.Time) (*submission.Submission, error) {
	content, err := parseContent(fs.Content)
	if err != nil {
		return nil, err
	}
	instanceID := fs.InstanceID
	if instanceID == "" {
		instanceID = "uuid:" + uuid.NewString()
	}
	submitted := now
	if fs.SubmissionDate != nil {
		submitted = *fs.SubmissionDate
	}
	version := fs.FormVersion
	if version == "" {
		version = formVersion
	}

	return &submission.Submission{
		InstanceID: instanceID,
		Content:    content,
		Data:       fs.Data,
		System: submission.System{
			SubmitterID:         fs.SubmitterID,
			SubmitterName:       fs.SubmitterName,
			SubmissionDate:      submission.Truncate(submitted),
			UpdatedAt:           fs.UpdatedAt,
			AttachmentsPresent:  fs.AttachmentsPresent,
			AttachmentsExpected: fs.AttachmentsExpected,
			Status:              fs.Status,
			ReviewState:         fs.ReviewState,
			DeviceID:            fs.DeviceID,
			Edits:               fs.Edits,
			FormVersion:         version,
		},
	}, nil
}
