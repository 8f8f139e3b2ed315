// Package store persists tuned work-size profiles so later runs can reuse
// them without searching again.
package store

// Store defines profile persistence. Implementations must be safe for
// concurrent use.
//
// Load and Delete return ErrNotFound for unknown keys; other failures are
// wrapped with context using fmt.Errorf("...: %w", err).
type Store interface {
	// SaveProfile atomically writes p under p.Key(), replacing any
	// earlier profile for the same device, kernel and global size.
	SaveProfile(p *Profile) error

	// LoadProfile returns the profile stored under key.
	LoadProfile(key string) (*Profile, error)

	// ListProfiles returns every readable profile. Unreadable files are
	// skipped.
	ListProfiles() ([]*Profile, error)

	// DeleteProfile removes the profile stored under key.
	DeleteProfile(key string) error
}

// ErrNotFound is returned when a requested profile does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing profile.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return "profile not found: " + e.Key
	}
	return "profile not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
