package lang

import (
	"encoding/json"
	"fmt"
	"time"
)

// PreferenceKey is the synced storage key holding the user's Preference.
const PreferenceKey = "userSettings"

// Speed controls how often the user may be prompted.
type Speed string

const (
	SpeedSlow        Speed = "slow"
	SpeedGentle      Speed = "gentle"
	SpeedFast        Speed = "fast"
	SpeedImmediately Speed = "immediately"
)

// DefaultSpeed is used when the stored preference has no valid speed.
const DefaultSpeed = SpeedGentle

// Minimum time between two prompts for each speed.
const (
	SlowThreshold        = 7 * time.Hour
	GentleThreshold      = time.Hour
	FastThreshold        = time.Minute
	ImmediatelyThreshold = time.Minute
)

// Threshold returns the minimum time between two prompts for s.
func (s Speed) Threshold() time.Duration {
	switch s {
	case SpeedSlow:
		return SlowThreshold
	case SpeedFast:
		return FastThreshold
	case SpeedImmediately:
		return ImmediatelyThreshold
	default:
		return GentleThreshold
	}
}

// Valid reports whether s is one of the known speeds.
func (s Speed) Valid() bool {
	switch s {
	case SpeedSlow, SpeedGentle, SpeedFast, SpeedImmediately:
		return true
	}
	return false
}

// Preference is the user's language preference as stored in the synced
// scope. MoreLanguages is ordered by priority. More and less lists are not
// required to be disjoint.
type Preference struct {
	MoreLanguages []string `json:"moreLanguages"`
	LessLanguages []string `json:"lessLanguages"`
	Speed         Speed    `json:"speed,omitempty"`
	CollectStats  bool     `json:"collectStats"`
	ConsentAge18  bool     `json:"is_18"`
}

// DecodePreference parses a stored preference. An empty input yields the
// zero preference with the default speed.
func DecodePreference(raw []byte) (Preference, error) {
	var p Preference
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return Preference{Speed: DefaultSpeed}, fmt.Errorf("decode %s: %w", PreferenceKey, err)
		}
	}
	return p.Normalized(), nil
}

// Normalized returns a copy with nil lists replaced by empty ones and an
// unknown speed replaced by DefaultSpeed.
func (p Preference) Normalized() Preference {
	out := p
	out.MoreLanguages = append([]string{}, p.MoreLanguages...)
	out.LessLanguages = append([]string{}, p.LessLanguages...)
	if !out.Speed.Valid() {
		out.Speed = DefaultSpeed
	}
	return out
}

// Configured reports whether the user picked any language to nudge toward.
func (p Preference) Configured() bool {
	return len(p.MoreLanguages) > 0
}
