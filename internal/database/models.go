package database

import (
	"time"
)

// Film status values. Films are written by the catalog service; this
// service only ever reads them.
const (
	FilmStatusDraft           = "DRAFT"
	FilmStatusPendingApproval = "PENDING_APPROVAL"
	FilmStatusApproved        = "APPROVED"
	FilmStatusPublished       = "PUBLISHED"
	FilmStatusArchived        = "ARCHIVED"
)

// Transaction status values, written by the payment service.
const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
	TransactionStatusRefunded  = "REFUNDED"
)

// SubscriptionStatusActive is the only subscription status that grants
// SVOD access.
const SubscriptionStatusActive = "active"

// Film represents a film in the catalog (read-only here)
type Film struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Title          string    `gorm:"not null" json:"title"`
	Slug           string    `gorm:"uniqueIndex" json:"slug"`
	Status         string    `gorm:"not null;index" json:"status"`
	RuntimeMinutes int       `json:"runtime_minutes"`
	PosterURL      string    `json:"poster_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Plan represents a subscription plan and its concurrent-stream quota
type Plan struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"not null" json:"name"`
	MaxStreams int    `gorm:"not null;default:1" json:"max_streams"`
}

// Subscription represents a user's subscription (read-only here)
type Subscription struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	UserID           string    `gorm:"not null;index" json:"user_id"`
	PlanID           string    `gorm:"not null" json:"plan_id"`
	Plan             Plan      `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status           string    `gorm:"not null" json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Transaction represents a completed purchase written by the payment
// service. RentalDurationHours and Amount are snapshotted from the window at
// purchase time so entitlement resolution never depends on the window's
// later state.
type Transaction struct {
	ID                  string    `gorm:"primaryKey" json:"id"`
	UserID              string    `gorm:"not null;index:idx_transactions_user_film" json:"user_id"`
	FilmID              string    `gorm:"not null;index:idx_transactions_user_film" json:"film_id"`
	WindowID            string    `json:"window_id"`
	WindowType          string    `gorm:"not null" json:"window_type"`
	Status              string    `gorm:"not null;index" json:"status"`
	Amount              int64     `json:"amount"`
	Currency            string    `json:"currency"`
	RentalDurationHours *int      `json:"rental_duration_hours,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Device represents a playback device registered for a user
type Device struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"not null;index" json:"user_id"`
	DeviceID   string    `gorm:"uniqueIndex;not null" json:"device_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Window represents a licensing window for a film. No two active windows of
// the same film and type with intersecting territories may overlap in time;
// the rights module enforces this at creation and on date/territory updates.
type Window struct {
	ID                  string     `gorm:"primaryKey" json:"id"`
	FilmID              string     `gorm:"not null;index:idx_windows_film_type" json:"film_id"`
	Film                *Film      `gorm:"foreignKey:FilmID" json:"film,omitempty"`
	WindowType          string     `gorm:"not null;index:idx_windows_film_type" json:"window_type"`
	Territories         []string   `gorm:"serializer:json" json:"territories"`
	StartDate           time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	Price               *int64     `json:"price,omitempty"`
	Currency            string     `json:"currency,omitempty"`
	RentalDurationHours *int       `json:"rental_duration_hours,omitempty"`
	IsActive            bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PlaybackLog is the durable audit row mirroring an ephemeral session. It is
// written for reporting and never consulted for admission decisions. A row
// without an EndTime belongs to a session that expired without an explicit
// stop; a background reconciliation job closes those from the last
// heartbeat.
type PlaybackLog struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	SessionID       string     `gorm:"uniqueIndex;not null" json:"session_id"`
	UserID          string     `gorm:"not null;index" json:"user_id"`
	FilmID          string     `gorm:"not null;index" json:"film_id"`
	DeviceID        string     `json:"device_id"`
	Quality         string     `json:"quality"`
	IPAddress       string     `json:"ip_address,omitempty"`
	StartTime       time.Time  `gorm:"not null" json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	PositionSeconds float64    `json:"position_seconds"`
	BandwidthKbps   int64      `json:"bandwidth_kbps"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WatchHistory stores a user's resume position per film
type WatchHistory struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"not null;uniqueIndex:idx_watch_history_user_film" json:"user_id"`
	FilmID          string    `gorm:"not null;uniqueIndex:idx_watch_history_user_film" json:"film_id"`
	PositionSeconds float64   `json:"position_seconds"`
	Completed       bool      `json:"completed"`
	LastWatchedAt   time.Time `json:"last_watched_at"`
	CreatedAt       time.Time `json:"created_at"`
}
