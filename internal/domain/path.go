// Package domain defines the learning-progress entities scraped from the platform.
package domain

import "time"

// Path is a top-level learning track.
type Path struct {
	ID          string    `db:"id"           json:"id"`
	PlatformID  string    `db:"platform_id"  json:"platform_id"`
	Title       string    `db:"title"        json:"title"`
	Progression float64   `db:"progression"  json:"progression"`
	Score       float64   `db:"score"        json:"score"`
	CreatedTime time.Time `db:"created_time" json:"created_time"`
	UpdatedTime time.Time `db:"updated_time" json:"updated_time"`
}

// Training is a course-like unit within a Path.
type Training struct {
	ID          string    `db:"id"           json:"id"`
	PlatformID  string    `db:"platform_id"  json:"platform_id"`
	PathID      string    `db:"path_id"      json:"path_id"`
	Title       string    `db:"title"        json:"title"`
	Type        string    `db:"type"         json:"type"`
	Progression float64   `db:"progression"  json:"progression"`
	Score       float64   `db:"score"        json:"score"`
	CreatedTime time.Time `db:"created_time" json:"created_time"`
	UpdatedTime time.Time `db:"updated_time" json:"updated_time"`
}

// UnknownTrainingType is used when no category marker is recognised.
const UnknownTrainingType = "unknown"
