package rightsmodule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/thewans/streamgate/internal/database"
)

// WindowStore is the durable repository of licensing windows. It owns the
// no-overlap invariant: no two active windows of the same film and type with
// intersecting territory sets may have overlapping half-open date ranges.
type WindowStore struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewWindowStore creates a new window store
func NewWindowStore(db *gorm.DB, logger hclog.Logger) *WindowStore {
	return &WindowStore{
		db:     db,
		logger: logger.Named("window-store"),
	}
}

// Create validates and persists a new licensing window. The overlap check
// runs inside the insert transaction under a per-(film,type) advisory lock
// so two administrators cannot race past each other's pre-read.
func (s *WindowStore) Create(ctx context.Context, input CreateWindowInput) (*database.Window, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var film database.Film
	if err := s.db.WithContext(ctx).First(&film, "id = ?", input.FilmID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFilmNotFound
		}
		return nil, fmt.Errorf("failed to load film: %w", err)
	}

	window := &database.Window{
		ID:                  uuid.New().String(),
		FilmID:              input.FilmID,
		WindowType:          input.WindowType,
		Territories:         input.Territories,
		StartDate:           input.StartDate.UTC(),
		Price:               input.Price,
		Currency:            input.Currency,
		RentalDurationHours: input.RentalDurationHours,
		IsActive:            true,
	}
	if input.EndDate != nil {
		end := input.EndDate.UTC()
		window.EndDate = &end
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.AdvisoryLock(tx, input.FilmID, input.WindowType); err != nil {
			return err
		}
		if err := s.checkOverlap(tx, window, ""); err != nil {
			return err
		}
		return tx.Create(window).Error
	})
	if err != nil {
		if errors.Is(err, ErrWindowConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	s.logger.Info("created licensing window",
		"window_id", window.ID,
		"film_id", window.FilmID,
		"window_type", window.WindowType)

	return window, nil
}

// Update applies a partial update. Date or territory changes re-run the
// overlap invariant against the other active windows. Price and rental
// duration changes are refused once the window is referenced by a purchase;
// pricing changes require a new window.
func (s *WindowStore) Update(ctx context.Context, windowID string, input UpdateWindowInput) (*database.Window, error) {
	window, err := s.Get(ctx, windowID)
	if err != nil {
		return nil, err
	}

	if input.Price != nil || input.RentalDurationHours != nil {
		referenced, err := s.isReferenced(ctx, windowID)
		if err != nil {
			return nil, err
		}
		if referenced {
			return nil, ErrWindowReferenced
		}
	}

	boundsChanged := false
	if input.Territories != nil {
		window.Territories = input.Territories
		boundsChanged = true
	}
	if input.StartDate != nil {
		start := input.StartDate.UTC()
		window.StartDate = start
		boundsChanged = true
	}
	if input.ClearEndDate {
		window.EndDate = nil
		boundsChanged = true
	} else if input.EndDate != nil {
		end := input.EndDate.UTC()
		window.EndDate = &end
		boundsChanged = true
	}
	if input.Price != nil {
		window.Price = input.Price
	}
	if input.Currency != nil {
		window.Currency = *input.Currency
	}
	if input.RentalDurationHours != nil {
		window.RentalDurationHours = input.RentalDurationHours
	}

	if err := validateWindowShape(window); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if boundsChanged && window.IsActive {
			if err := database.AdvisoryLock(tx, window.FilmID, window.WindowType); err != nil {
				return err
			}
			if err := s.checkOverlap(tx, window, window.ID); err != nil {
				return err
			}
		}
		return tx.Save(window).Error
	})
	if err != nil {
		if errors.Is(err, ErrWindowConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update window: %w", err)
	}

	return window, nil
}

// Toggle flips a window's active flag. Re-activation re-runs the overlap
// invariant, since other windows may have been created while this one was
// inactive.
func (s *WindowStore) Toggle(ctx context.Context, windowID string) (*database.Window, error) {
	window, err := s.Get(ctx, windowID)
	if err != nil {
		return nil, err
	}

	window.IsActive = !window.IsActive

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if window.IsActive {
			if err := database.AdvisoryLock(tx, window.FilmID, window.WindowType); err != nil {
				return err
			}
			if err := s.checkOverlap(tx, window, window.ID); err != nil {
				return err
			}
		}
		return tx.Model(&database.Window{}).Where("id = ?", window.ID).
			Update("is_active", window.IsActive).Error
	})
	if err != nil {
		if errors.Is(err, ErrWindowConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to toggle window: %w", err)
	}

	return window, nil
}

// Delete removes a window permanently
func (s *WindowStore) Delete(ctx context.Context, windowID string) error {
	result := s.db.WithContext(ctx).Delete(&database.Window{}, "id = ?", windowID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete window: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// Get retrieves a window by ID
func (s *WindowStore) Get(ctx context.Context, windowID string) (*database.Window, error) {
	var window database.Window
	if err := s.db.WithContext(ctx).First(&window, "id = ?", windowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to load window: %w", err)
	}
	return &window, nil
}

// ListForFilm returns all windows of a film ordered by start date
func (s *WindowStore) ListForFilm(ctx context.Context, filmID string) ([]database.Window, error) {
	var windows []database.Window
	if err := s.db.WithContext(ctx).
		Where("film_id = ?", filmID).
		Order("start_date ASC").
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	return windows, nil
}

// Upcoming returns the next future active windows of a film
func (s *WindowStore) Upcoming(ctx context.Context, filmID string, now time.Time, limit int) ([]database.Window, error) {
	if limit <= 0 {
		limit = 5
	}
	var windows []database.Window
	if err := s.db.WithContext(ctx).
		Where("film_id = ? AND is_active = ? AND start_date > ?", filmID, true, now).
		Order("start_date ASC").
		Limit(limit).
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to list upcoming windows: %w", err)
	}
	return windows, nil
}

// ActiveForType returns all currently-running active windows of a type with
// their films preloaded, for catalog surfaces.
func (s *WindowStore) ActiveForType(ctx context.Context, windowType string, now time.Time) ([]database.Window, error) {
	if !validWindowTypes[windowType] {
		return nil, fmt.Errorf("%w: unknown window type %q", ErrValidation, windowType)
	}
	var windows []database.Window
	if err := s.db.WithContext(ctx).
		Preload("Film").
		Where("window_type = ? AND is_active = ? AND start_date <= ?", windowType, true, now).
		Where("end_date IS NULL OR end_date > ?", now).
		Order("start_date DESC").
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active windows: %w", err)
	}
	return windows, nil
}

// checkOverlap reads the active windows of the same film and type within the
// given transaction and rejects the candidate on any territory and date
// intersection. excludeID skips the candidate's own row on updates.
func (s *WindowStore) checkOverlap(tx *gorm.DB, candidate *database.Window, excludeID string) error {
	query := tx.Where("film_id = ? AND window_type = ? AND is_active = ?",
		candidate.FilmID, candidate.WindowType, true)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var existing []database.Window
	if err := query.Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to query existing windows: %w", err)
	}

	for i := range existing {
		other := &existing[i]
		if !territoriesIntersect(candidate.Territories, other.Territories) {
			continue
		}
		if !rangesOverlap(candidate.StartDate, candidate.EndDate, other.StartDate, other.EndDate) {
			continue
		}
		return fmt.Errorf("%w: overlaps window %s", ErrWindowConflict, other.ID)
	}
	return nil
}

// isReferenced reports whether any transaction has been recorded against the
// window.
func (s *WindowStore) isReferenced(ctx context.Context, windowID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Transaction{}).
		Where("window_id = ?", windowID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count referencing transactions: %w", err)
	}
	return count > 0, nil
}

func validateCreateInput(input CreateWindowInput) error {
	if !validWindowTypes[input.WindowType] {
		return fmt.Errorf("%w: unknown window type %q", ErrValidation, input.WindowType)
	}
	if len(input.Territories) == 0 {
		return fmt.Errorf("%w: at least one territory is required", ErrValidation)
	}
	if input.EndDate != nil && !input.StartDate.Before(*input.EndDate) {
		return fmt.Errorf("%w: start date must be before end date", ErrValidation)
	}
	if rentalWindowTypes[input.WindowType] {
		if input.RentalDurationHours == nil || *input.RentalDurationHours <= 0 {
			return fmt.Errorf("%w: rental duration is required for %s windows", ErrValidation, input.WindowType)
		}
	}
	return nil
}

func validateWindowShape(window *database.Window) error {
	if len(window.Territories) == 0 {
		return fmt.Errorf("%w: at least one territory is required", ErrValidation)
	}
	if window.EndDate != nil && !window.StartDate.Before(*window.EndDate) {
		return fmt.Errorf("%w: start date must be before end date", ErrValidation)
	}
	if rentalWindowTypes[window.WindowType] {
		if window.RentalDurationHours == nil || *window.RentalDurationHours <= 0 {
			return fmt.Errorf("%w: rental duration is required for %s windows", ErrValidation, window.WindowType)
		}
	}
	return nil
}

// territoriesIntersect reports whether two territory sets share a territory.
// GLOBAL intersects everything.
func territoriesIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	hasGlobal := false
	for _, t := range a {
		if t == TerritoryGlobal {
			hasGlobal = true
		}
		set[t] = true
	}
	for _, t := range b {
		if hasGlobal || t == TerritoryGlobal || set[t] {
			return true
		}
	}
	return false
}

// rangesOverlap reports whether two half-open [start, end) ranges intersect.
// A nil end means open-ended.
func rangesOverlap(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	if aEnd != nil && !bStart.Before(*aEnd) {
		return false
	}
	if bEnd != nil && !aStart.Before(*bEnd) {
		return false
	}
	return true
}
