package models

import (
	"strings"
	"time"
)

// Subject enumerates the programmes an assignment can belong to.
type Subject string

const (
	SubjectDataScience   Subject = "Data Science And Analytics"
	SubjectCybersecurity Subject = "Cybersecurity"
	SubjectAI            Subject = "Artificial Intelligence"
)

// Subjects lists every accepted subject.
var Subjects = []Subject{SubjectDataScience, SubjectCybersecurity, SubjectAI}

// ParseSubject matches raw case-insensitively against the known subjects.
func ParseSubject(raw string) (Subject, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range Subjects {
		if strings.EqualFold(string(s), raw) {
			return s, true
		}
	}
	return "", false
}

// Assignment is the instructor-authored definition. It is immutable once created.
type Assignment struct {
	ID          string    `db:"id" json:"id" bson:"_id"`
	Title       string    `db:"title" json:"title" bson:"title"`
	Subject     Subject   `db:"subject" json:"subject" bson:"subject"`
	Note        string    `db:"note" json:"note" bson:"note"`
	Link        string    `db:"link" json:"link" bson:"link"`
	Attachments []string  `db:"attachments" json:"attachments" bson:"attachments"`
	StartDate   time.Time `db:"start_date" json:"startDate" bson:"start_date"`
	EndDate     time.Time `db:"end_date" json:"endDate" bson:"end_date"`
	Group       bool      `db:"is_group" json:"group" bson:"is_group"`
	GroupTag    *string   `db:"group_tag" json:"groupTag,omitempty" bson:"group_tag,omitempty"`
	AssignedTo  []string  `db:"assigned_to" json:"assignedTo" bson:"assigned_to"`
	CreatedBy   string    `db:"created_by" json:"createdBy" bson:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt" bson:"created_at"`
}

// AssignmentFilter constrains definition listings.
type AssignmentFilter struct {
	Subject   Subject
	CreatedBy string
	Page      int
	PageSize  int
}

// Normalize clamps paging values to sane bounds.
func (f *AssignmentFilter) Normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// Offset returns the row offset for the current page.
func (f AssignmentFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
