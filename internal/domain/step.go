package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StepType is the kind of a Step, derived from its icon.
type StepType string

// Step types. Anything else the platform renders maps to StepTypeUnknown.
const (
	StepTypeText     StepType = "text"
	StepTypeVideo    StepType = "video"
	StepTypeQuiz     StepType = "quiz"
	StepTypeDocument StepType = "document"
	StepTypeIframe   StepType = "iframe"
	StepTypeUnknown  StepType = "unknown"
)

// ParseStepType maps a platform tag to a StepType. It never fails.
func ParseStepType(tag string) StepType {
	switch StepType(strings.ToLower(strings.TrimSpace(tag))) {
	case StepTypeText:
		return StepTypeText
	case StepTypeVideo:
		return StepTypeVideo
	case StepTypeQuiz:
		return StepTypeQuiz
	case StepTypeDocument:
		return StepTypeDocument
	case StepTypeIframe:
		return StepTypeIframe
	default:
		return StepTypeUnknown
	}
}

// ContentType returns the content captured for the step type, and false
// when the type carries no downloadable content.
func (t StepType) ContentType() (ContentType, bool) {
	switch t {
	case StepTypeText:
		return ContentTypeText, true
	case StepTypeDocument:
		return ContentTypeDocument, true
	case StepTypeVideo:
		return ContentTypeVideo, true
	case StepTypeQuiz, StepTypeIframe, StepTypeUnknown:
		return "", false
	default:
		return "", false
	}
}

// State-box classes.
const (
	stateValidatedClass = "state-success"
	stateBlockedClass   = "state-locked"
)

// ErrInconsistentStepState is returned when a step is both validated and blocked.
var ErrInconsistentStepState = errors.New("step cannot be both validated and blocked")

// Step is an individual unit of a Training.
type Step struct {
	ID          string    `db:"id"           json:"id"`
	PlatformID  string    `db:"platform_id"  json:"platform_id"`
	TrainingID  string    `db:"training_id"  json:"training_id"`
	Title       string    `db:"title"        json:"title"`
	Type        StepType  `db:"type"         json:"type"`
	IsValidated bool      `db:"is_validated" json:"is_validated"`
	IsBlocked   bool      `db:"is_blocked"   json:"is_blocked"`
	CreatedTime time.Time `db:"created_time" json:"created_time"`
	UpdatedTime time.Time `db:"updated_time" json:"updated_time"`

	// Index is the visual position of the module item on the training page.
	Index int `db:"-" json:"index"`
}

// StepStateFromClasses derives the validated and blocked flags from the
// class attribute of the state indicator. Validated wins if both appear.
func StepStateFromClasses(classAttr string) (validated, blocked bool) {
	for _, class := range strings.Fields(classAttr) {
		switch class {
		case stateValidatedClass:
			validated = true
		case stateBlockedClass:
			blocked = true
		}
	}
	if validated {
		blocked = false
	}
	return validated, blocked
}

// Validate checks the step invariants.
func (s Step) Validate() error {
	if s.IsValidated && s.IsBlocked {
		return fmt.Errorf("step %s: %w", s.ID, ErrInconsistentStepState)
	}
	return nil
}
