// Package uuid wraps google/uuid for the random identifiers campusgate hands
// to browsers.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s is a well-formed random UUID. Cookies carrying
// anything else are treated as absent.
func Valid(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.Version() == 4 && len(s) == 36
}
