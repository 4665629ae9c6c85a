package jira

import (
	"encoding/json"
	"fmt"

	errs "jirabackup/pkg/errors"
)

// IssueRef is one entry of a search page. Self is the canonical issue URL and
// the dedup key within a run.
type IssueRef struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// SearchResponse is the body of /rest/api/2/search
type SearchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []IssueRef `json:"issues"`
}

// Attachment describes one binary attached to an issue
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Status is the workflow state of an issue
type Status struct {
	Name string `json:"name"`
}

// Fields holds the issue fields the backup layout depends on
type Fields struct {
	Summary     string       `json:"summary"`
	Status      Status       `json:"status"`
	Attachments []Attachment `json:"attachment"`
}

// Issue is a fetched issue. Raw holds the response body exactly as received;
// it is what gets persisted.
type Issue struct {
	Key    string          `json:"key"`
	Self   string          `json:"self"`
	Fields Fields          `json:"fields"`
	Raw    json.RawMessage `json:"-"`
}

// StatusName returns fields.status.name
func (i *Issue) StatusName() string { return i.Fields.Status.Name }

// Summary returns fields.summary
func (i *Issue) Summary() string { return i.Fields.Summary }

// ParseIssue decodes the fields of an issue document and keeps data verbatim
func ParseIssue(data []byte) (*Issue, error) {
	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse issue: %v", err),
			Code:    200,
		}
	}
	if issue.Key == "" {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: "issue document has no key",
			Code:    200,
		}
	}
	issue.Raw = append(json.RawMessage(nil), data...)
	return &issue, nil
}
