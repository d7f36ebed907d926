package handlers

import (
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/job"
)

// ConversionDTO is the status projection returned by the polling and
// listing endpoints. Filesystem paths never leave the server; completed
// jobs expose a download URL instead.
type ConversionDTO struct {
	ConversionID     string     `json:"conversionId"`
	Status           string     `json:"status"`
	OriginalFileName string     `json:"originalFileName"`
	OriginalFormat   string     `json:"originalFormat"`
	TargetFormat     string     `json:"targetFormat"`
	FileSizeBytes    int64      `json:"fileSizeBytes"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	Error            string     `json:"error,omitempty"`
	DownloadURL      string     `json:"downloadUrl,omitempty"`
	FileName         string     `json:"fileName,omitempty"`
}

func toConversionDTO(j *job.Job) ConversionDTO {
	dto := ConversionDTO{
		ConversionID:     j.ID,
		Status:           string(j.Status),
		OriginalFileName: j.OriginalFileName,
		OriginalFormat:   j.OriginalFormat,
		TargetFormat:     j.TargetFormat,
		FileSizeBytes:    j.FileSizeBytes,
		CreatedAt:        j.CreatedAt,
		CompletedAt:      j.CompletedAt,
		Warnings:         j.Warnings,
	}
	if j.ErrorMessage != nil {
		dto.Error = *j.ErrorMessage
	}
	if j.Status == job.StatusCompleted && j.DownloadPath != nil {
		dto.DownloadURL = fmt.Sprintf("/api/download/%s", j.ID)
		dto.FileName = downloadFileName(j)
	}
	return dto
}

// downloadFileName is the user-facing name for the converted file: the
// original stem with the target extension.
func downloadFileName(j *job.Job) string {
	return fileutil.Stem(j.OriginalFileName) + "." + j.TargetFormat
}
