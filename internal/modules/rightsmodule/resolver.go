package rightsmodule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/thewans/streamgate/internal/database"
)

// Resolver computes a user's right to stream a film at a point in time. It
// is a pure function of (film, user, territory, now) over the window store
// and the entitlement sources; it never mutates state.
type Resolver struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewResolver creates a new availability resolver
func NewResolver(db *gorm.DB, logger hclog.Logger) *Resolver {
	return &Resolver{
		db:     db,
		logger: logger.Named("availability-resolver"),
	}
}

// Resolve returns the access decision for one film. An empty userID yields
// availability and payment hints only; no entitlement is computed and the
// access type is always "none".
func (r *Resolver) Resolve(ctx context.Context, filmID, userID, territory string, now time.Time) (*Availability, error) {
	var film database.Film
	if err := r.db.WithContext(ctx).First(&film, "id = ?", filmID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFilmNotFound
		}
		return nil, fmt.Errorf("failed to load film: %w", err)
	}

	var windows []database.Window
	if err := r.db.WithContext(ctx).
		Where("film_id = ? AND is_active = ?", filmID, true).
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to load windows: %w", err)
	}

	ent, err := r.loadEntitlements(ctx, userID, []string{filmID}, now)
	if err != nil {
		return nil, err
	}

	return decide(&film, windows, territory, userID, ent.subscription, ent.purchases[filmID], now), nil
}

// ResolveBulk resolves many films in a constant number of store round trips.
// Each entry is identical to what Resolve would return for that film; films
// that do not exist are omitted.
func (r *Resolver) ResolveBulk(ctx context.Context, filmIDs []string, userID, territory string, now time.Time) (map[string]*Availability, error) {
	if len(filmIDs) == 0 {
		return nil, fmt.Errorf("%w: film ids must be a non-empty list", ErrValidation)
	}

	var films []database.Film
	if err := r.db.WithContext(ctx).
		Where("id IN ?", filmIDs).
		Find(&films).Error; err != nil {
		return nil, fmt.Errorf("failed to load films: %w", err)
	}

	var windows []database.Window
	if err := r.db.WithContext(ctx).
		Where("film_id IN ? AND is_active = ?", filmIDs, true).
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("failed to load windows: %w", err)
	}

	windowsByFilm := make(map[string][]database.Window)
	for _, w := range windows {
		windowsByFilm[w.FilmID] = append(windowsByFilm[w.FilmID], w)
	}

	ent, err := r.loadEntitlements(ctx, userID, filmIDs, now)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*Availability, len(films))
	for i := range films {
		film := &films[i]
		results[film.ID] = decide(film, windowsByFilm[film.ID], territory, userID,
			ent.subscription, ent.purchases[film.ID], now)
	}
	return results, nil
}

// entitlements holds the per-request entitlement reads shared between the
// single and bulk paths.
type entitlements struct {
	subscription *database.Subscription
	purchases    map[string]*database.Transaction
}

func (r *Resolver) loadEntitlements(ctx context.Context, userID string, filmIDs []string, now time.Time) (*entitlements, error) {
	ent := &entitlements{purchases: make(map[string]*database.Transaction)}
	if userID == "" {
		return ent, nil
	}

	var sub database.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND current_period_end >= ?",
			userID, database.SubscriptionStatusActive, now).
		Order("current_period_end DESC").
		First(&sub).Error
	switch {
	case err == nil:
		ent.subscription = &sub
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no active subscription
	default:
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	var purchases []database.Transaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND film_id IN ? AND status = ? AND window_type IN ?",
			userID, filmIDs, database.TransactionStatusCompleted,
			[]string{WindowTypeTVOD, WindowTypePPV, WindowTypePVOD}).
		Order("created_at DESC").
		Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}

	// Rows are ordered newest first; keep the most recent per film.
	for i := range purchases {
		p := &purchases[i]
		if _, seen := ent.purchases[p.FilmID]; !seen {
			ent.purchases[p.FilmID] = p
		}
	}

	return ent, nil
}

// decide implements the precedence-ordered access decision. It is shared by
// Resolve and ResolveBulk so the two are observably equivalent.
func decide(film *database.Film, windows []database.Window, territory, userID string,
	subscription *database.Subscription, purchase *database.Transaction, now time.Time) *Availability {

	if film.Status != database.FilmStatusPublished {
		return &Availability{
			Available:   false,
			AccessType:  AccessTypeNone,
			Windows:     []WindowAvailability{},
			WindowTypes: []string{},
			Reason:      "film is not published",
		}
	}

	selectable := selectWindows(windows, territory, now)
	if len(selectable) == 0 {
		return &Availability{
			Available:   false,
			AccessType:  AccessTypeNone,
			Windows:     []WindowAvailability{},
			WindowTypes: []string{},
			Reason:      "no active windows for territory",
		}
	}

	result := &Availability{
		Available:   true,
		AccessType:  AccessTypeNone,
		Windows:     toWindowAvailability(selectable),
		WindowTypes: windowTypes(selectable),
		LowestPrice: lowestPrice(selectable),
	}

	if userID != "" {
		result.AccessType = resolveAccess(selectable, subscription, purchase, now)
		result.HasAccess = result.AccessType != AccessTypeNone
	}

	if !result.HasAccess {
		result.RequiresPayment = anyPriced(selectable)
		result.RequiresSubscription = containsType(selectable, WindowTypeSVOD)
	}

	return result
}

// resolveAccess evaluates the entitlement precedence order: subscription,
// then time-boxed purchase, then ad-supported access. First match wins.
func resolveAccess(windows []database.Window, subscription *database.Subscription,
	purchase *database.Transaction, now time.Time) string {

	if subscription != nil && containsType(windows, WindowTypeSVOD) {
		return AccessTypeSVOD
	}

	if purchase != nil {
		// Expiry comes from the duration snapshotted onto the transaction at
		// purchase time, not from the window's current definition. A missing
		// snapshot means the purchase was sold without a time box.
		if purchase.RentalDurationHours == nil {
			return purchase.WindowType
		}
		expiry := purchase.CreatedAt.Add(time.Duration(*purchase.RentalDurationHours) * time.Hour)
		if now.Before(expiry) {
			return purchase.WindowType
		}
	}

	if containsType(windows, WindowTypeAVOD) {
		return AccessTypeAVOD
	}

	return AccessTypeNone
}

// selectWindows filters to active windows covering the territory whose
// [start, end) range contains now.
func selectWindows(windows []database.Window, territory string, now time.Time) []database.Window {
	var selected []database.Window
	for _, w := range windows {
		if !w.IsActive {
			continue
		}
		if !coversTerritory(w.Territories, territory) {
			continue
		}
		if w.StartDate.After(now) {
			continue
		}
		if w.EndDate != nil && !now.Before(*w.EndDate) {
			continue
		}
		selected = append(selected, w)
	}
	return selected
}

func coversTerritory(territories []string, territory string) bool {
	for _, t := range territories {
		if t == TerritoryGlobal || t == territory {
			return true
		}
	}
	return false
}

func containsType(windows []database.Window, windowType string) bool {
	for _, w := range windows {
		if w.WindowType == windowType {
			return true
		}
	}
	return false
}

// windowTypes returns the distinct window types in selection order
func windowTypes(windows []database.Window) []string {
	seen := make(map[string]bool, len(windows))
	types := make([]string, 0, len(windows))
	for _, w := range windows {
		if !seen[w.WindowType] {
			seen[w.WindowType] = true
			types = append(types, w.WindowType)
		}
	}
	return types
}

func lowestPrice(windows []database.Window) *int64 {
	var lowest *int64
	for _, w := range windows {
		if w.Price == nil {
			continue
		}
		if lowest == nil || *w.Price < *lowest {
			price := *w.Price
			lowest = &price
		}
	}
	return lowest
}

func anyPriced(windows []database.Window) bool {
	for _, w := range windows {
		if w.Price != nil && *w.Price > 0 {
			return true
		}
	}
	return false
}

func toWindowAvailability(windows []database.Window) []WindowAvailability {
	out := make([]WindowAvailability, 0, len(windows))
	for _, w := range windows {
		out = append(out, WindowAvailability{
			WindowID:            w.ID,
			WindowType:          w.WindowType,
			Price:               w.Price,
			Currency:            w.Currency,
			StartDate:           w.StartDate,
			EndDate:             w.EndDate,
			RentalDurationHours: w.RentalDurationHours,
		})
	}
	return out
}
