package model

import (
	"fmt"
	"strings"
)

// ThreatType is the label attached to a voter address.
type ThreatType string

const (
	Normal            ThreatType = "Normal"
	ScriptBot         ThreatType = "Script Bot"
	Recycler          ThreatType = "Recycler"
	ReoccurringThreat ThreatType = "Reoccurring Threat"

	// Threats is the generic designation used when a reviewer approves an
	// address without naming a category.
	Threats ThreatType = "Threats"
)

// AllThreatTypes in reporting order. Per-label counts over all of them sum to
// the number of distinct voters; Threats only shows up when a Concluded round
// reads back reviewed-file rows.
var AllThreatTypes = []ThreatType{Normal, ScriptBot, Recycler, ReoccurringThreat, Threats}

func (t ThreatType) IsThreat() bool { return t != "" && t != Normal }

func (t ThreatType) String() string { return string(t) }

// ParseThreatType accepts the display names as well as compact spellings
// ("scriptbot", "script_bot", "reoccurring").
func ParseThreatType(s string) (ThreatType, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
	switch k {
	case "normal", "":
		return Normal, nil
	case "scriptbot", "bot":
		return ScriptBot, nil
	case "recycler":
		return Recycler, nil
	case "reoccurringthreat", "reoccurring", "recurringthreat":
		return ReoccurringThreat, nil
	case "threats", "threat":
		return Threats, nil
	}
	return "", fmt.Errorf("unknown threat type %q", s)
}

// Provenance marks whether a registry entry was committed in a previous
// round (Old) or in the round currently under review (New).
type Provenance string

const (
	Old Provenance = "Old"
	New Provenance = "New"
)
