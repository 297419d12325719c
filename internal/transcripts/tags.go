package transcripts

import (
	"strings"

	"github.com/wolfman30/salesfusion/internal/conversation"
)

// Tag identifiers.
const (
	TagHot        = "hot"
	TagWarm       = "warm"
	TagCold       = "cold"
	TagEnterprise = "enterprise"
	TagUrgent     = "urgent"
)

// Default score bands.
const (
	DefaultHotLead  = 75
	DefaultWarmLead = 50
)

// AutoAssignRule decides when a tag applies. A rule with both a score range
// and keywords needs both to match.
type AutoAssignRule struct {
	ScoreMin *int     `json:"scoreMin,omitempty"`
	ScoreMax *int     `json:"scoreMax,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

func (r AutoAssignRule) hasScoreRange() bool { return r.ScoreMin != nil || r.ScoreMax != nil }

func (r AutoAssignRule) scoreMatches(score int) bool {
	if r.ScoreMin != nil && score < *r.ScoreMin {
		return false
	}
	if r.ScoreMax != nil && score > *r.ScoreMax {
		return false
	}
	return true
}

// LeadTag is a derived label; it is never persisted on its own.
type LeadTag struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Color          string         `json:"color"`
	Description    string         `json:"description"`
	AutoAssignRule AutoAssignRule `json:"autoAssignRule"`
}

// Catalog returns the static tag set for the given score bands. Hot covers
// [hotLead, 100], warm [warmLead, hotLead), cold everything below warmLead.
func Catalog(hotLead, warmLead int) []LeadTag {
	if hotLead <= 0 {
		hotLead = DefaultHotLead
	}
	if warmLead <= 0 || warmLead > hotLead {
		warmLead = DefaultWarmLead
	}
	hotMin, warmMin, warmMax, coldMax := hotLead, warmLead, hotLead-1, warmLead-1
	return []LeadTag{
		{
			ID: TagHot, Name: "Hot Lead", Color: "#ef4444",
			Description:    "High qualification score, ready for sales",
			AutoAssignRule: AutoAssignRule{ScoreMin: &hotMin},
		},
		{
			ID: TagWarm, Name: "Warm Lead", Color: "#f59e0b",
			Description:    "Partially qualified, worth nurturing",
			AutoAssignRule: AutoAssignRule{ScoreMin: &warmMin, ScoreMax: &warmMax},
		},
		{
			ID: TagCold, Name: "Cold Lead", Color: "#3b82f6",
			Description:    "Early stage or low fit",
			AutoAssignRule: AutoAssignRule{ScoreMax: &coldMax},
		},
		{
			ID: TagEnterprise, Name: "Enterprise", Color: "#8b5cf6",
			Description: "Large organization signals",
			AutoAssignRule: AutoAssignRule{Keywords: []string{
				"enterprise", "fortune 500", "global", "multinational", "1000+ employees",
				"thousands of employees", "large organization", "corporation",
			}},
		},
		{
			ID: TagUrgent, Name: "Urgent", Color: "#dc2626",
			Description: "Time-sensitive need",
			AutoAssignRule: AutoAssignRule{Keywords: []string{
				"urgent", "asap", "immediately", "right away", "this week", "critical", "deadline",
			}},
		},
	}
}

// AssignTags recomputes tags from scratch. Score rules run first, then
// keyword rules over the whole message history. Earlier tags are not kept.
func AssignTags(catalog []LeadTag, conv *conversation.Conversation) []LeadTag {
	if conv == nil {
		return []LeadTag{}
	}
	score := conv.QualificationStatus.Score

	var text strings.Builder
	for _, m := range conv.Messages {
		text.WriteString(strings.ToLower(m.Content))
		text.WriteByte('\n')
	}
	history := text.String()

	tags := make([]LeadTag, 0, 3)
	for _, tag := range catalog {
		rule := tag.AutoAssignRule
		if rule.hasScoreRange() && len(rule.Keywords) == 0 && rule.scoreMatches(score) {
			tags = append(tags, tag)
		}
	}
	for _, tag := range catalog {
		rule := tag.AutoAssignRule
		if len(rule.Keywords) == 0 {
			continue
		}
		if rule.hasScoreRange() && !rule.scoreMatches(score) {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(history, strings.ToLower(kw)) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}

func hasTag(tags []LeadTag, id string) bool {
	for _, t := range tags {
		if t.ID == id {
			return true
		}
	}
	return false
}
