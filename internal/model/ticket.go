package model

import (
	"slices"
	"strings"
	"time"
)

// Filters narrow the counterparts a participant accepts. Empty fields accept
// everyone.
type Filters struct {
	Gender    string   `json:"gender,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// Profile describes the participant itself and is what the other side's
// filters are evaluated against.
type Profile struct {
	Gender  string `json:"gender,omitempty"`
	Country string `json:"country,omitempty"`
}

type Ticket struct {
	Identity   string    `json:"identity"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Tier       Tier      `json:"tier"`
	Filters    Filters   `json:"filters"`
	Profile    Profile   `json:"profile"`
}

// Admits reports whether f accepts a counterpart with profile p.
func (f Filters) Admits(p Profile) bool {
	if f.Gender != "" && !strings.EqualFold(f.Gender, p.Gender) {
		return false
	}
	if len(f.Countries) > 0 {
		return slices.ContainsFunc(f.Countries, func(c string) bool {
			return strings.EqualFold(c, p.Country)
		})
	}
	return true
}
