package rightsmodule

import (
	"errors"
	"time"
)

// Window types. FESTIVAL, CINEMA and COLLECTOR windows gate theatrical and
// collector distribution and carry no streaming entitlement of their own.
const (
	WindowTypeFestival  = "FESTIVAL"
	WindowTypeCinema    = "CINEMA"
	WindowTypePVOD      = "PVOD"
	WindowTypePPV       = "PPV"
	WindowTypeTVOD      = "TVOD"
	WindowTypeSVOD      = "SVOD"
	WindowTypeAVOD      = "AVOD"
	WindowTypeCollector = "COLLECTOR"
)

// TerritoryGlobal is the wildcard territory that intersects every other
// territory set.
const TerritoryGlobal = "GLOBAL"

// Access types returned by the resolver.
const (
	AccessTypeNone = "none"
	AccessTypeSVOD = "SVOD"
	AccessTypeTVOD = "TVOD"
	AccessTypePPV  = "PPV"
	AccessTypePVOD = "PVOD"
	AccessTypeAVOD = "AVOD"
)

var (
	// ErrValidation wraps all input validation failures.
	ErrValidation = errors.New("validation error")
	// ErrFilmNotFound is returned when the referenced film does not exist.
	ErrFilmNotFound = errors.New("film not found")
	// ErrWindowNotFound is returned when the referenced window does not exist.
	ErrWindowNotFound = errors.New("window not found")
	// ErrWindowConflict is returned when a window would overlap an active
	// window of the same film and type with intersecting territories.
	ErrWindowConflict = errors.New("window conflict")
	// ErrWindowReferenced is returned when a price or rental duration change
	// is attempted on a window already referenced by a purchase.
	ErrWindowReferenced = errors.New("window referenced by purchase")
)

var validWindowTypes = map[string]bool{
	WindowTypeFestival:  true,
	WindowTypeCinema:    true,
	WindowTypePVOD:      true,
	WindowTypePPV:       true,
	WindowTypeTVOD:      true,
	WindowTypeSVOD:      true,
	WindowTypeAVOD:      true,
	WindowTypeCollector: true,
}

// rentalWindowTypes require a rental duration because purchases against them
// are time-boxed.
var rentalWindowTypes = map[string]bool{
	WindowTypeTVOD: true,
	WindowTypePPV:  true,
	WindowTypePVOD: true,
}

// CreateWindowInput is the payload for creating a licensing window
type CreateWindowInput struct {
	FilmID              string     `json:"film_id" binding:"required"`
	WindowType          string     `json:"window_type" binding:"required"`
	Territories         []string   `json:"territories" binding:"required"`
	StartDate           time.Time  `json:"start_date" binding:"required"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	Price               *int64     `json:"price,omitempty"`
	Currency            string     `json:"currency,omitempty"`
	RentalDurationHours *int       `json:"rental_duration_hours,omitempty"`
}

// UpdateWindowInput is the payload for updating a window. Nil fields are
// left unchanged; ClearEndDate removes the end date, making the window
// open-ended.
type UpdateWindowInput struct {
	Territories         []string   `json:"territories,omitempty"`
	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	ClearEndDate        bool       `json:"clear_end_date,omitempty"`
	Price               *int64     `json:"price,omitempty"`
	Currency            *string    `json:"currency,omitempty"`
	RentalDurationHours *int       `json:"rental_duration_hours,omitempty"`
}

// WindowAvailability describes one currently-selectable window in an
// availability response.
type WindowAvailability struct {
	WindowID            string     `json:"window_id"`
	WindowType          string     `json:"window_type"`
	Price               *int64     `json:"price,omitempty"`
	Currency            string     `json:"currency,omitempty"`
	StartDate           time.Time  `json:"start_date"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	RentalDurationHours *int       `json:"rental_duration_hours,omitempty"`
}

// Availability is the resolver's access decision for one film
type Availability struct {
	Available            bool                 `json:"available"`
	HasAccess            bool                 `json:"has_access"`
	AccessType           string               `json:"access_type"`
	Windows              []WindowAvailability `json:"windows"`
	WindowTypes          []string             `json:"window_types"`
	LowestPrice          *int64               `json:"lowest_price,omitempty"`
	RequiresPayment      bool                 `json:"requires_payment"`
	RequiresSubscription bool                 `json:"requires_subscription"`
	Reason               string               `json:"reason,omitempty"`
}
