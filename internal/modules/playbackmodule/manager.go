package playbackmodule

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thewans/streamgate/internal/database"
	"github.com/thewans/streamgate/internal/modules/rightsmodule"
)

// AccessResolver is the slice of the rights module the session manager
// needs.
type AccessResolver interface {
	Resolve(ctx context.Context, filmID, userID, territory string, now time.Time) (*rightsmodule.Availability, error)
}

// ManagerConfig holds the session manager's tunables
type ManagerConfig struct {
	SessionTTL         time.Duration
	DefaultStreamLimit int
	// CompletionPercent is the high watermark past which a stopped session
	// marks the film watched even without an explicit completed flag.
	CompletionPercent float64
	CDNBaseURL        string
}

// Manager orchestrates the playback session lifecycle: it composes the
// availability resolver, the session registry and the token issuer into the
// start/heartbeat/stop protocol.
type Manager struct {
	db       *gorm.DB
	registry SessionRegistry
	resolver AccessResolver
	issuer   *TokenIssuer
	audit    *AuditWriter
	cfg      ManagerConfig
	logger   hclog.Logger
	now      func() time.Time
}

// NewManager creates a new session manager
func NewManager(db *gorm.DB, registry SessionRegistry, resolver AccessResolver,
	issuer *TokenIssuer, audit *AuditWriter, cfg ManagerConfig, logger hclog.Logger) *Manager {

	if cfg.DefaultStreamLimit < 1 {
		cfg.DefaultStreamLimit = 1
	}
	if cfg.CompletionPercent <= 0 {
		cfg.CompletionPercent = 90
	}
	return &Manager{
		db:       db,
		registry: registry,
		resolver: resolver,
		issuer:   issuer,
		audit:    audit,
		cfg:      cfg,
		logger:   logger.Named("session-manager"),
		now:      time.Now,
	}
}

// Start admits a new playback session. Admission either fully succeeds or
// leaves no state behind: the registry slot is taken atomically, and any
// failure after admission releases it before returning.
func (m *Manager) Start(ctx context.Context, input StartInput) (*StartResult, error) {
	if input.UserID == "" || input.FilmID == "" || input.DeviceID == "" {
		return nil, fmt.Errorf("%w: user, film and device are required", ErrValidation)
	}
	if input.Quality == "" {
		input.Quality = "auto"
	}
	territory := input.Territory
	if territory == "" {
		territory = rightsmodule.TerritoryGlobal
	}

	now := m.now()

	availability, err := m.resolver.Resolve(ctx, input.FilmID, input.UserID, territory, now)
	if err != nil {
		return nil, err
	}
	if !availability.HasAccess {
		return nil, ErrAccessDenied
	}

	limit, err := m.streamLimit(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	var film database.Film
	if err := m.db.WithContext(ctx).First(&film, "id = ?", input.FilmID).Error; err != nil {
		return nil, fmt.Errorf("failed to load film: %w", err)
	}

	state := SessionState{
		SessionID:      uuid.New().String(),
		UserID:         input.UserID,
		FilmID:         input.FilmID,
		DeviceID:       input.DeviceID,
		Quality:        input.Quality,
		RuntimeSeconds: float64(film.RuntimeMinutes) * 60,
		StartTime:      now,
		TokenExpiresAt: now.Add(m.issuer.Lifetime()),
	}

	granted, err := m.registry.Acquire(ctx, input.UserID, limit, state, m.cfg.SessionTTL)
	if err != nil {
		// Acquire is not retried internally: the failed admission left no
		// state, so the caller retries the whole start safely.
		return nil, fmt.Errorf("admission failed: %w", err)
	}
	if !granted {
		return nil, ErrConcurrentStreamLimit
	}

	m.registerDevice(ctx, input)

	tokens, err := m.issuer.Issue(input.FilmID, input.UserID, input.DeviceID, DefaultProtectionSystems)
	if err != nil {
		if relErr := m.registry.Release(ctx, input.UserID, state.SessionID); relErr != nil {
			m.logger.Error("failed to release slot after token failure",
				"session_id", state.SessionID, "error", relErr)
		}
		return nil, fmt.Errorf("failed to issue stream tokens: %w", err)
	}

	m.audit.Do("playback log create", func(db *gorm.DB) error {
		return db.Create(&database.PlaybackLog{
			ID:        uuid.New().String(),
			SessionID: state.SessionID,
			UserID:    input.UserID,
			FilmID:    input.FilmID,
			DeviceID:  input.DeviceID,
			Quality:   input.Quality,
			IPAddress: input.IPAddress,
			StartTime: now,
		}).Error
	})

	m.logger.Info("session admitted",
		"session_id", state.SessionID,
		"user_id", input.UserID,
		"film_id", input.FilmID,
		"limit", limit)

	return &StartResult{
		SessionID: state.SessionID,
		FilmID:    input.FilmID,
		Quality:   input.Quality,
		StreamURL: m.streamURL(input.FilmID, input.Quality),
		Tokens:    tokens,
		ExpiresAt: now.Add(m.cfg.SessionTTL),
	}, nil
}

// Heartbeat refreshes a live session's TTL and records playback progress.
// Progress writes are best-effort and at-least-once; only the TTL refresh
// can fail the call.
func (m *Manager) Heartbeat(ctx context.Context, sessionID string, position float64, bandwidth int64) (*HeartbeatResult, error) {
	state, err := m.registry.Touch(ctx, sessionID, m.cfg.SessionTTL)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	m.audit.Do("playback log progress", func(db *gorm.DB) error {
		return db.Model(&database.PlaybackLog{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"position_seconds": position,
				"bandwidth_kbps":   bandwidth,
			}).Error
	})

	m.upsertWatchHistory(state, position, nil)

	return &HeartbeatResult{
		SessionID: sessionID,
		Updated:   true,
		ExpiresAt: state.ExpiresAt,
	}, nil
}

// Stop ends a session. The registry slot is released unconditionally, even
// when the audit finalization fails: a stuck concurrency slot punishes the
// user, while a lost audit write is retried in the background.
func (m *Manager) Stop(ctx context.Context, sessionID string, position float64, completed bool) (*StopResult, error) {
	state, err := m.registry.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	defer func() {
		if relErr := m.registry.Release(ctx, state.UserID, sessionID); relErr != nil {
			// Double-release is a no-op, so this can be retried freely.
			m.logger.Error("failed to release session slot", "session_id", sessionID, "error", relErr)
		}
	}()

	if !completed && state.RuntimeSeconds > 0 {
		watched := position / state.RuntimeSeconds * 100
		completed = watched >= m.cfg.CompletionPercent
	}

	endTime := m.now()
	m.audit.Do("playback log finalize", func(db *gorm.DB) error {
		return db.Model(&database.PlaybackLog{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"end_time":         &endTime,
				"position_seconds": position,
			}).Error
	})

	m.upsertWatchHistory(state, position, &completed)

	m.logger.Info("session stopped", "session_id", sessionID, "completed", completed)

	return &StopResult{SessionID: sessionID, Stopped: true}, nil
}

// ActiveSessions lists a user's currently live sessions
func (m *Manager) ActiveSessions(ctx context.Context, userID string) ([]SessionState, error) {
	return m.registry.ActiveSessions(ctx, userID)
}

// IssueTokens mints stream tokens for an entitled user outside the start
// flow, for players that fetch license tokens separately.
func (m *Manager) IssueTokens(ctx context.Context, filmID, userID, deviceID, territory string) (*IssuedTokens, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrValidation)
	}
	if territory == "" {
		territory = rightsmodule.TerritoryGlobal
	}

	availability, err := m.resolver.Resolve(ctx, filmID, userID, territory, m.now())
	if err != nil {
		return nil, err
	}
	if !availability.HasAccess {
		return nil, ErrAccessDenied
	}

	return m.issuer.Issue(filmID, userID, deviceID, DefaultProtectionSystems)
}

// ValidateToken verifies a stream token against a film claim
func (m *Manager) ValidateToken(tokenString, filmID string) (*StreamClaims, error) {
	return m.issuer.Validate(tokenString, filmID)
}

// streamLimit reads the user's plan quota, defaulting when the user has no
// active subscription.
func (m *Manager) streamLimit(ctx context.Context, userID string) (int, error) {
	var sub database.Subscription
	err := m.db.WithContext(ctx).Preload("Plan").
		Where("user_id = ? AND status = ?", userID, database.SubscriptionStatusActive).
		Order("current_period_end DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m.cfg.DefaultStreamLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.Plan.MaxStreams > 0 {
		return sub.Plan.MaxStreams, nil
	}
	return m.cfg.DefaultStreamLimit, nil
}

// registerDevice upserts the playback device. Device bookkeeping is
// best-effort and never fails admission.
func (m *Manager) registerDevice(ctx context.Context, input StartInput) {
	device := database.Device{
		ID:         uuid.New().String(),
		UserID:     input.UserID,
		DeviceID:   input.DeviceID,
		DeviceName: input.UserAgent,
		DeviceType: detectDeviceType(input.UserAgent),
		LastUsedAt: m.now(),
	}
	if device.DeviceName == "" {
		device.DeviceName = "Unknown Device"
	}

	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_name", "device_type", "last_used_at"}),
	}).Create(&device).Error
	if err != nil {
		m.logger.Warn("device bookkeeping failed", "device_id", input.DeviceID, "error", err)
	}
}

// upsertWatchHistory records the resume position. Idempotent and
// at-least-once: replays overwrite with the latest position. A nil
// completed leaves the stored flag alone, so a re-watch heartbeat never
// un-completes a film the user already finished.
func (m *Manager) upsertWatchHistory(state *SessionState, position float64, completed *bool) {
	row := database.WatchHistory{
		ID:              uuid.New().String(),
		UserID:          state.UserID,
		FilmID:          state.FilmID,
		PositionSeconds: position,
		LastWatchedAt:   m.now(),
	}
	columns := []string{"position_seconds", "last_watched_at"}
	if completed != nil {
		row.Completed = *completed
		columns = append(columns, "completed")
	}

	m.audit.Do("watch history upsert", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "film_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&row).Error
	})
}

func (m *Manager) streamURL(filmID, quality string) string {
	if quality != "" && quality != "auto" {
		return fmt.Sprintf("%s/streams/%s/%s/master.m3u8", m.cfg.CDNBaseURL, filmID, quality)
	}
	return fmt.Sprintf("%s/streams/%s/master.m3u8", m.cfg.CDNBaseURL, filmID)
}

var (
	mobileRe = regexp.MustCompile(`(?i)mobile`)
	tabletRe = regexp.MustCompile(`(?i)tablet`)
	tvRe     = regexp.MustCompile(`(?i)smart-?tv|\btv\b`)
)

func detectDeviceType(userAgent string) string {
	switch {
	case mobileRe.MatchString(userAgent):
		return "mobile"
	case tabletRe.MatchString(userAgent):
		return "tablet"
	case tvRe.MatchString(userAgent):
		return "tv"
	default:
		return "desktop"
	}
}
