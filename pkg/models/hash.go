package models

import (
	"time"
)

// LookupType is the category of opaque identifier a hash resolves to.
type LookupType string

const (
	LookupVehicle    LookupType = "vehicle"
	LookupTrailer    LookupType = "trailer"
	LookupTeam       LookupType = "team"
	LookupDepartment LookupType = "department"
	LookupUHF        LookupType = "uhf"
	LookupUnknown    LookupType = "unknown"
)

// ParseLookupType normalizes a string to a LookupType, falling back to
// LookupUnknown for anything unrecognized.
func ParseLookupType(s string) LookupType {
	switch LookupType(s) {
	case LookupVehicle, LookupTrailer, LookupTeam, LookupDepartment, LookupUHF:
		return LookupType(s)
	}
	return LookupUnknown
}

// HashEntry maps an opaque upstream hash to a human-readable value.
//
// Entries are bulk-loaded from the authoritative asset and site exports;
// (tip_hash, lookup_type) is stable while resolved_value may be refreshed.
type HashEntry struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	TIPHash       string     `gorm:"not null;size:64;column:tip_hash;uniqueIndex:idx_hash_lookup" json:"tip_hash"`
	LookupType    LookupType `gorm:"not null;size:16;uniqueIndex:idx_hash_lookup" json:"lookup_type"`
	ResolvedValue string     `gorm:"size:255" json:"resolved_value"`

	// SourceType records which export produced the entry (asset, site).
	SourceType string `gorm:"size:32" json:"source_type,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for HashEntry.
func (HashEntry) TableName() string {
	return "hash_lookup"
}

// UnknownHash records a sighting of a hash the dictionary could not resolve,
// for later human resolution. One row per (tip_hash, lookup_type); the first
// encountered timestamp is preserved across repeat sightings.
type UnknownHash struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	TIPHash          string     `gorm:"not null;size:64;column:tip_hash;uniqueIndex:idx_unknown_hash" json:"tip_hash"`
	LookupType       LookupType `gorm:"not null;size:16;uniqueIndex:idx_unknown_hash" json:"lookup_type"`
	FirstEncountered time.Time  `gorm:"not null" json:"first_encountered"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedValue    string     `gorm:"size:255" json:"resolved_value,omitempty"`
}

// TableName returns the table name for UnknownHash.
func (UnknownHash) TableName() string {
	return "unknown_hashes"
}
