package model

import (
	"fmt"
	"strconv"
)

// ConditionKind is the closed set of badge unlock conditions.
type ConditionKind uint8

const (
	ConditionXPMilestone ConditionKind = iota + 1
	ConditionStreakMilestone
	ConditionFirstMission
	ConditionRegionMaster
)

var conditionNames = map[ConditionKind]string{
	ConditionXPMilestone:     "xp_milestone",
	ConditionStreakMilestone: "streak_milestone",
	ConditionFirstMission:    "first_mission",
	ConditionRegionMaster:    "region_master",
}

func (k ConditionKind) String() string {
	if name, ok := conditionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ConditionKind(%d)", uint8(k))
}

// ParseConditionKind maps a stored condition_type to its kind.
func ParseConditionKind(s string) (ConditionKind, error) {
	for k, name := range conditionNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown badge condition %q", s)
}

func (k ConditionKind) MarshalText() ([]byte, error) {
	if _, ok := conditionNames[k]; !ok {
		return nil, fmt.Errorf("unknown badge condition %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ConditionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseConditionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// BadgeCondition is one unlock rule. Threshold applies to the milestone kinds,
// Region to region_master.
type BadgeCondition struct {
	Kind      ConditionKind `json:"type" validate:"required"`
	Threshold int64         `json:"threshold,omitempty"`
	Region    string        `json:"region,omitempty"`
}

// ParseCondition builds a condition from the condition_type and
// condition_value columns.
func ParseCondition(kind, value string) (BadgeCondition, error) {
	k, err := ParseConditionKind(kind)
	if err != nil {
		return BadgeCondition{}, err
	}
	cond := BadgeCondition{Kind: k}
	switch k {
	case ConditionXPMilestone, ConditionStreakMilestone:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return BadgeCondition{}, fmt.Errorf("badge condition %s: invalid threshold %q", kind, value)
		}
		cond.Threshold = n
	case ConditionRegionMaster:
		if value == "" {
			return BadgeCondition{}, fmt.Errorf("badge condition %s: empty region", kind)
		}
		cond.Region = value
	case ConditionFirstMission:
	}
	return cond, nil
}

// Value returns the condition_value column for the condition.
func (c BadgeCondition) Value() string {
	switch c.Kind {
	case ConditionXPMilestone, ConditionStreakMilestone:
		return strconv.FormatInt(c.Threshold, 10)
	case ConditionRegionMaster:
		return c.Region
	default:
		return ""
	}
}

// Badge is a catalog entry.
type Badge struct {
	ID          string         `json:"id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Category    string         `json:"category"`
	XPReward    int64          `json:"xp_reward" validate:"gte=0"`
	Rarity      string         `json:"rarity"`
	Condition   BadgeCondition `json:"condition"`
}
