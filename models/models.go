// Package models holds the shared domain types of the dashboard service:
// platforms, date ranges, credential records and the normalized metrics
// shapes exchanged between the orchestration layer and its collaborators.
package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotConnected = errors.New("platform not connected")
)

// Platform identifies one external advertising/CRM/spreadsheet data source.
type Platform string

const (
	PlatformFacebook    Platform = "facebook"
	PlatformGoogleAds   Platform = "google"
	PlatformGoHighLevel Platform = "gohighlevel"
	PlatformSheets      Platform = "sheets"
)

// AllPlatforms lists every platform the orchestrator knows how to fetch.
func AllPlatforms() []Platform {
	return []Platform{PlatformFacebook, PlatformGoogleAds, PlatformGoHighLevel, PlatformSheets}
}

// OAuthPlatforms lists the platforms whose credentials are OAuth tokens
// subject to expiry and refresh. Sheets authenticates with a Google OAuth
// token of its own record.
func OAuthPlatforms() []Platform {
	return []Platform{PlatformFacebook, PlatformGoogleAds, PlatformGoHighLevel, PlatformSheets}
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformGoogleAds, PlatformGoHighLevel, PlatformSheets:
		return true
	}

	return false
}

func (p Platform) String() string {
	return string(p)
}

// ParsePlatform converts a string into a Platform or fails with ErrInvalidInput.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, s)
	}

	return p, nil
}

// DateRange is an inclusive calendar range for a metrics query.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: range end before start", ErrInvalidInput)
	}

	return DateRange{Start: start, End: end}, nil
}

// Key returns a stable string form usable in cache keys.
func (r DateRange) Key() string {
	return r.Start.Format("20060102") + "-" + r.End.Format("20060102")
}

func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// PreviousPeriod returns the range of equal length immediately preceding
// this one, used for period-over-period comparison.
func (r DateRange) PreviousPeriod() DateRange {
	span := r.End.Sub(r.Start)

	return DateRange{
		Start: r.Start.Add(-span - 24*time.Hour),
		End:   r.Start.Add(-24 * time.Hour),
	}
}
