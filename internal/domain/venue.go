package domain

import (
	"fmt"
	"time"
)

// TargetKind identifies what a booking or exception is addressed to
type TargetKind string

const (
	TargetVenue       TargetKind = "VENUE"
	TargetGround      TargetKind = "GROUND"
	TargetCombination TargetKind = "COMBINATION"
)

// IsBookable reports whether bookings can be addressed to this kind
func (k TargetKind) IsBookable() bool {
	return k == TargetGround || k == TargetCombination
}

// GroundSize is the capacity class of a ground
type GroundSize string

const (
	GroundSizeFive   GroundSize = "FIVE_A_SIDE"
	GroundSizeSeven  GroundSize = "SEVEN_A_SIDE"
	GroundSizeEleven GroundSize = "ELEVEN_A_SIDE"
)

// LargestGroundSize cannot take part in a combination
const LargestGroundSize = GroundSizeEleven

func (s GroundSize) IsValid() bool {
	switch s {
	case GroundSizeFive, GroundSizeSeven, GroundSizeEleven:
		return true
	}
	return false
}

// SurfaceType is the playing surface of a ground
type SurfaceType string

const (
	SurfaceNatural    SurfaceType = "NATURAL_GRASS"
	SurfaceArtificial SurfaceType = "ARTIFICIAL_GRASS"
	SurfaceIndoor     SurfaceType = "INDOOR"
)

// Venue is a bookable site with its rules, schedule and layout
type Venue struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"ownerId"`
	Name              string        `json:"name"`
	Timezone          string        `json:"timezone"`
	AutomaticApproval bool          `json:"automaticApproval"`
	Defaults          RuleSet       `json:"defaults"`
	Schedule          Schedule      `json:"schedule"`
	Grounds           []Ground      `json:"grounds"`
	Combinations      []Combination `json:"combinations"`
	ArchivedAt        *time.Time    `json:"archivedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// Ground is an atomic bookable playing area
type Ground struct {
	ID        string        `json:"id"`
	VenueID   string        `json:"venueId"`
	Name      string        `json:"name"`
	BasePrice float64       `json:"basePrice"`
	Size      GroundSize    `json:"size"`
	Surface   SurfaceType   `json:"surface"`
	Overrides RuleOverrides `json:"overrides"`
}

// Combination bundles two or more grounds booked as one unit
type Combination struct {
	ID        string        `json:"id"`
	VenueID   string        `json:"venueId"`
	Name      string        `json:"name"`
	BasePrice float64       `json:"basePrice"`
	Overrides RuleOverrides `json:"overrides"`
	// GroundIDs is the ordered member list
	GroundIDs []string `json:"groundIds"`
}

// Target is the resolved addressee of a booking or availability query
type Target struct {
	Kind      TargetKind
	ID        string
	Name      string
	BasePrice float64
	// GroundIDs are the grounds the target occupies
	GroundIDs []string
}

// Location returns the venue's time zone, UTC when unset or unknown
func (v *Venue) Location() *time.Location {
	if v.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsArchived reports a soft-archived venue
func (v *Venue) IsArchived() bool {
	return v.ArchivedAt != nil
}

// Ground finds a ground by id
func (v *Venue) Ground(id string) (*Ground, bool) {
	for i := range v.Grounds {
		if v.Grounds[i].ID == id {
			return &v.Grounds[i], true
		}
	}
	return nil, false
}

// Combination finds a combination by id
func (v *Venue) Combination(id string) (*Combination, bool) {
	for i := range v.Combinations {
		if v.Combinations[i].ID == id {
			return &v.Combinations[i], true
		}
	}
	return nil, false
}

// ResolveTarget looks up a ground or combination of this venue
func (v *Venue) ResolveTarget(kind TargetKind, id string) (Target, error) {
	switch kind {
	case TargetGround:
		g, ok := v.Ground(id)
		if !ok {
			return Target{}, fmt.Errorf("%w: %s", ErrGroundNotFound, id)
		}
		return Target{Kind: kind, ID: g.ID, Name: g.Name, BasePrice: g.BasePrice, GroundIDs: []string{g.ID}}, nil
	case TargetCombination:
		c, ok := v.Combination(id)
		if !ok {
			return Target{}, fmt.Errorf("%w: %s", ErrCombinationNotFound, id)
		}
		return Target{Kind: kind, ID: c.ID, Name: c.Name, BasePrice: c.BasePrice, GroundIDs: append([]string{}, c.GroundIDs...)}, nil
	default:
		return Target{}, NewValidationError("targetType", fmt.Sprintf("unsupported target type %q", kind))
	}
}

// MemberOverrides returns the overrides of a combination's member grounds, in member order
func (v *Venue) MemberOverrides(c *Combination) []RuleOverrides {
	out := make([]RuleOverrides, 0, len(c.GroundIDs))
	for _, id := range c.GroundIDs {
		if g, ok := v.Ground(id); ok {
			out = append(out, g.Overrides)
		}
	}
	return out
}

// Validate checks grounds and combinations of the layout
func (v *Venue) Validate() error {
	if err := v.Defaults.Validate(); err != nil {
		return err
	}
	if err := v.Schedule.Validate(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(v.Timezone); v.Timezone != "" && err != nil {
		return NewValidationError("timezone", fmt.Sprintf("unknown time zone %q", v.Timezone))
	}

	names := make(map[string]bool, len(v.Grounds))
	for i, g := range v.Grounds {
		if g.Name == "" {
			return NewValidationError(fmt.Sprintf("grounds[%d].name", i), "ground name is required")
		}
		if names[g.Name] {
			return NewValidationError(fmt.Sprintf("grounds[%d].name", i), fmt.Sprintf("duplicate ground name %q", g.Name))
		}
		names[g.Name] = true
		if g.BasePrice < 0 {
			return NewValidationError(fmt.Sprintf("grounds[%d].basePrice", i), "base price cannot be negative")
		}
		if !g.Size.IsValid() {
			return NewValidationError(fmt.Sprintf("grounds[%d].size", i), fmt.Sprintf("unknown ground size %q", g.Size))
		}
	}

	for i := range v.Combinations {
		if err := v.Combinations[i].Validate(v.Grounds); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks membership rules against the venue's grounds: at least two
// unique members, same surface, none of the largest size class.
func (c *Combination) Validate(grounds []Ground) error {
	if len(c.GroundIDs) < 2 {
		return NewValidationError("combination.groundIds", "a combination needs at least 2 grounds")
	}
	if c.BasePrice < 0 {
		return NewValidationError("combination.basePrice", "base price cannot be negative")
	}

	byID := make(map[string]Ground, len(grounds))
	for _, g := range grounds {
		byID[g.ID] = g
	}

	seen := make(map[string]bool, len(c.GroundIDs))
	var surface SurfaceType
	for i, id := range c.GroundIDs {
		path := fmt.Sprintf("combination.groundIds[%d]", i)
		if seen[id] {
			return NewValidationError(path, fmt.Sprintf("duplicate ground %s", id))
		}
		seen[id] = true

		g, ok := byID[id]
		if !ok {
			return NewValidationError(path, fmt.Sprintf("ground %s does not belong to this venue", id))
		}
		if g.Size == LargestGroundSize {
			return NewValidationError(path, fmt.Sprintf("ground %s is of the largest size and cannot be combined", g.Name))
		}
		if i == 0 {
			surface = g.Surface
		} else if g.Surface != surface {
			return NewValidationError(path, "all grounds of a combination must share a surface type")
		}
	}
	return nil
}
