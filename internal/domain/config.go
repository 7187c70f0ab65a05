package domain

import "time"

const (
	// SettingsKey is the well-known key of the singleton settings record.
	SettingsKey = "ticket_settings"
	// DefaultClaimLimit applies only while no settings record is stored.
	DefaultClaimLimit = 5
)

// ConfigRecord holds the ticket tunables.
//
// OverrideRoles is stored and reported but not consulted by the claim path.
type ConfigRecord struct {
	Key            string
	ClaimLimit     int
	EnforceOnClaim bool
	OverrideRoles  []string
	UpdatedAt      time.Time
}

// DefaultConfig returns the settings used when no record exists.
func DefaultConfig(claimLimit int) ConfigRecord {
	if claimLimit < 0 {
		claimLimit = DefaultClaimLimit
	}
	return ConfigRecord{
		Key:           SettingsKey,
		ClaimLimit:    claimLimit,
		OverrideRoles: []string{},
	}
}
