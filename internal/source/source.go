// Package source defines the collaborator that supplies a form's schema and
// its submissions to the feed.
package source

import (
	"context"
	"slices"
	"strings"

	"github.com/nlstn/go-odata-forms/internal/filter"
	"github.com/nlstn/go-odata-forms/internal/metadata"
	"github.com/nlstn/go-odata-forms/internal/problem"
	"github.com/nlstn/go-odata-forms/internal/submission"
)

// Request narrows the submissions a Source returns.
type Request struct {
	// Filter may be pushed down to storage. The feed re-applies it, so a
	// Source is free to ignore it.
	Filter *filter.Filter
	// InstanceID restricts the result to one submission when set.
	InstanceID string
}

// Source supplies one form (or draft) and its submissions.
type Source interface {
	// Form returns the form schema, or an error matching
	// problem.ErrSchemaUnavailable when there is none to serve.
	Form(ctx context.Context) (*metadata.Form, error)
	// Submissions returns the submissions matching req in any order.
	Submissions(ctx context.Context, req Request) ([]*submission.Submission, error)
}

// Memory is a Source backed by a fixed form and submission list.
type Memory struct {
	Schema  *metadata.Form
	Entries []*submission.Submission
}

// Form implements Source.
func (m *Memory) Form(ctx context.Context) (*metadata.Form, error) {
	if m.Schema == nil {
		return nil, problem.ErrSchemaUnavailable
	}
	return m.Schema, nil
}

// Submissions implements Source.
func (m *Memory) Submissions(ctx context.Context, req Request) ([]*submission.Submission, error) {
	var out []*submission.Submission
	for _, sub := range m.Entries {
		if req.InstanceID != "" && sub.InstanceID != req.InstanceID {
			continue
		}
		if !req.Filter.Match(&sub.System) {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

// SortNewestFirst orders submissions by submission date descending, ties
// broken by instance id descending.
func SortNewestFirst(subs []*submission.Submission) {
	slices.SortStableFunc(subs, func(a, b *submission.Submission) int {
		if c := b.System.SubmissionDate.Compare(a.System.SubmissionDate); c != 0 {
			return c
		}
		return strings.Compare(b.InstanceID, a.InstanceID)
	})
}
