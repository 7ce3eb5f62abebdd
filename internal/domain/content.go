package domain

import "time"

// ContentType is the kind of payload captured for a Step.
type ContentType string

// Content types.
const (
	ContentTypeText     ContentType = "text"
	ContentTypeDocument ContentType = "document"
	ContentTypeVideo    ContentType = "video"
)

// Extension returns the file extension for the content type, including the dot.
func (t ContentType) Extension() string {
	switch t {
	case ContentTypeText:
		return ".html"
	case ContentTypeDocument:
		return ".pdf"
	case ContentTypeVideo:
		return ".mp4"
	default:
		return ".bin"
	}
}

// MIMEType returns the content type header used when storing the payload.
func (t ContentType) MIMEType() string {
	switch t {
	case ContentTypeText:
		return "text/html; charset=utf-8"
	case ContentTypeDocument:
		return "application/pdf"
	case ContentTypeVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// Content is the payload downloaded for a Step. Its ID is the Step ID.
type Content struct {
	ID          string      `db:"id"           json:"id"`
	StepID      string      `db:"step_id"      json:"step_id"`
	Filename    string      `db:"filename"     json:"filename"`
	Type        ContentType `db:"type"         json:"type"`
	CreatedTime time.Time   `db:"created_time" json:"created_time"`
	UpdatedTime time.Time   `db:"updated_time" json:"updated_time"`
}

// ContentFilename names the stored payload for a step.
func ContentFilename(stepID string, t ContentType) string {
	return "content_" + stepID + t.Extension()
}

// NewContent builds the Content record for a step.
func NewContent(step Step, t ContentType) Content {
	return Content{
		ID:       step.ID,
		StepID:   step.ID,
		Filename: ContentFilename(step.ID, t),
		Type:     t,
	}
}
