// Package submission defines the in-memory form submission handed to the
// feed: fixed system metadata plus a parsed value tree.
package submission

import "time"

// ContentState describes how much of a submission's content can be shown.
type ContentState int

const (
	// ContentNormal submissions expose their full value tree.
	ContentNormal ContentState = iota
	// ContentDegraded submissions expose their top-level values but none of
	// their repeat instances.
	ContentDegraded
	// ContentRootOnly submissions expose only __id and __system.
	ContentRootOnly
)

func (s ContentState) String() string {
	switch s {
	case ContentDegraded:
		return "degraded"
	case ContentRootOnly:
		return "rootOnly"
	default:
		return "normal"
	}
}

// HasRepeats reports whether repeat instances of the submission may be listed.
func (s ContentState) HasRepeats() bool {
	return s == ContentNormal
}

// System is the fixed per-submission metadata exposed under __system.
type System struct {
	SubmitterID         int64
	SubmitterName       string
	SubmissionDate      time.Time
	UpdatedAt           *time.Time
	AttachmentsPresent  int64
	AttachmentsExpected int64
	Status              *string
	ReviewState         *string
	DeviceID            *string
	Edits               int64
	FormVersion         string
}

// Submission is one form submission. Data is keyed by original field names;
// groups are nested maps, repeats are []any of maps (or a single map when the
// repeat occurred once) and leaves are strings.
type Submission struct {
	InstanceID string
	System     System
	Content    ContentState
	Data       map[string]any
}

// Precision is the timestamp resolution used for comparisons and output.
const Precision = time.Millisecond

// Truncate normalizes t to UTC at Precision.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}
