// Package job provides the conversion job record and its stores.
//
// A Job is the single source of truth for status polling: created in the
// processing state when an upload is accepted, transitioned exactly once
// to completed or failed by the runner, and read repeatedly by the status
// and download handlers.
package job

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a conversion job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Common store errors.
var (
	// ErrNotFound indicates no job exists for the given id.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal indicates a mutation was attempted on a job that has
	// already reached a terminal state.
	ErrTerminal = errors.New("job already in terminal state")
)

// Job is one user-submitted conversion request and its lifecycle record.
//
// Invariant: once Status is terminal, exactly one of DownloadPath (until
// the artifact is reaped) or ErrorMessage is non-nil, and neither Status
// nor the terminal fields ever change again. The artifact sweep may later
// null DownloadPath; the record itself persists.
type Job struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"sessionId"`
	OriginalFileName string         `json:"originalFileName"`
	OriginalFormat   string         `json:"originalFormat"`
	TargetFormat     string         `json:"targetFormat"`
	FileSizeBytes    int64          `json:"fileSizeBytes"`
	Status           Status         `json:"status"`
	DownloadPath     *string        `json:"downloadPath,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	ErrorMessage     *string        `json:"errorMessage,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewJob builds a job record in the processing state with a fresh id.
func NewJob(sessionID, originalFileName, originalFormat, targetFormat string, sizeBytes int64, metadata map[string]any) *Job {
	return &Job{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		OriginalFileName: originalFileName,
		OriginalFormat:   originalFormat,
		TargetFormat:     targetFormat,
		FileSizeBytes:    sizeBytes,
		Status:           StatusProcessing,
		CreatedAt:        time.Now().UTC(),
		Metadata:         metadata,
	}
}

// Clone returns a deep copy so callers can read records without holding
// store locks.
func (j *Job) Clone() *Job {
	cp := *j
	if j.DownloadPath != nil {
		v := *j.DownloadPath
		cp.DownloadPath = &v
	}
	if j.ErrorMessage != nil {
		v := *j.ErrorMessage
		cp.ErrorMessage = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		cp.CompletedAt = &v
	}
	if j.Warnings != nil {
		cp.Warnings = append([]string(nil), j.Warnings...)
	}
	if j.Metadata != nil {
		cp.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
