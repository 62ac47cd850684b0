package entity

import (
	"time"

	"github.com/google/uuid"
)

type Job struct {
	ID             string     `json:"id" bson:"id"`
	SourceTaskID   string     `json:"sourceTaskId" bson:"sourceTaskId"`
	JobTitle       string     `json:"jobTitle" bson:"jobTitle"`
	JobDescription string     `json:"jobDescription" bson:"jobDescription"`
	JobSalary      *string    `json:"jobSalary" bson:"jobSalary"`
	DatePosted     *time.Time `json:"datePosted" bson:"datePosted"`
	RawData        RawRecord  `json:"rawData,omitempty" bson:"rawData,omitempty"`
	Processed      bool       `json:"processed" bson:"processed"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
}

func NewJob(sourceTaskID, title, description string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:             uuid.New().String(),
		SourceTaskID:   sourceTaskID,
		JobTitle:       title,
		JobDescription: description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// JobPatch is a partial update. nil pointers leave the field untouched;
// the Clear flags set the nullable fields back to null.
type JobPatch struct {
	SourceTaskID    *string
	JobTitle        *string
	JobDescription  *string
	JobSalary       *string
	ClearSalary     bool
	DatePosted      *time.Time
	ClearDatePosted bool
	Processed       *bool
}

func (p JobPatch) IsEmpty() bool {
	return p.SourceTaskID == nil && p.JobTitle == nil && p.JobDescription == nil &&
		p.JobSalary == nil && !p.ClearSalary && p.DatePosted == nil && !p.ClearDatePosted &&
		p.Processed == nil
}

// BulkResult reports the outcome of ingesting one page of rows.
// Failed rows are also counted in Skipped.
type BulkResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
