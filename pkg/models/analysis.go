package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Pillar keys as they appear in the model's JSON output
const (
	PillarTechnical   = "technicalSkills"
	PillarTactical    = "tacticalSkills"
	PillarPhysicality = "physicality"
)

// Sub-category keys per pillar
var (
	TechnicalSubCategories = []string{
		"racketSkills", "controlPrecision", "deceptionVariation", "footworkTechnique", "strokeMechanics",
	}
	TacticalSubCategories = []string{
		"gameUnderstanding", "shotSelection", "rallyConstruction", "readingAnticipation", "formations",
	}
	PhysicalitySubCategories = []string{
		"speedAgility", "explosivePower", "endurance", "strengthStability", "mobility", "anthropometrics",
	}
)

// Confidence tiers
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// Score is a numeric rating that also accepts numeric strings, since the
// model occasionally quotes numbers. Anything else decodes to zero.
type Score float64

// UnmarshalJSON implements json.Unmarshaler
func (s *Score) UnmarshalJSON(data []byte) error {
	*s = 0
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return nil
		}
		raw = strings.TrimSpace(unquoted)
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		*s = Score(v)
	}
	return nil
}

// SubCategory is one scored facet within a pillar
type SubCategory struct {
	Score        Score    `json:"score"`
	Observations []string `json:"observations"`
	Successes    []string `json:"successes"`
	Improvements []string `json:"improvements"`
}

// UnmarshalJSON decodes each field on its own. A field of the wrong type is
// left empty instead of failing the whole result.
func (c *SubCategory) UnmarshalJSON(data []byte) error {
	*c = SubCategory{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	_ = c.Score.UnmarshalJSON(fields["score"])
	c.Observations = stringList(fields["observations"])
	c.Successes = stringList(fields["successes"])
	c.Improvements = stringList(fields["improvements"])
	return nil
}

// Pillar maps sub-category keys to their scores. Keys are whatever the model
// returned; missing keys are tolerated.
type Pillar map[string]SubCategory

// UnmarshalJSON keeps only object-valued entries, so pillar-level extras
// such as a "score" number are dropped.
func (p *Pillar) UnmarshalJSON(data []byte) error {
	*p = nil
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	pillar := make(Pillar, len(fields))
	for key, raw := range fields {
		if _, isObject := objectFields(raw); !isObject {
			continue
		}
		var sub SubCategory
		_ = sub.UnmarshalJSON(raw)
		pillar[key] = sub
	}
	*p = pillar
	return nil
}

// Score returns the mean sub-category score, or false when the pillar is empty.
func (p Pillar) Score() (float64, bool) {
	if len(p) == 0 {
		return 0, false
	}
	var sum float64
	for _, sub := range p {
		sum += float64(sub.Score)
	}
	return sum / float64(len(p)), true
}

// Confidence describes how sure the model is about its assessment
type Confidence struct {
	Score  string `json:"score"`
	Reason string `json:"reason"`
}

// UnmarshalJSON accepts the documented object or a bare tier string
func (c *Confidence) UnmarshalJSON(data []byte) error {
	*c = Confidence{}
	if fields, ok := objectFields(data); ok {
		c.Score = stringValue(fields["score"])
		c.Reason = stringValue(fields["reason"])
		return nil
	}
	c.Score = stringValue(data)
	return nil
}

// AnalysisResult is the structured coaching feedback returned by the model
type AnalysisResult struct {
	OverallScore    Score      `json:"overallScore"`
	Confidence      Confidence `json:"confidence"`
	TechnicalSkills Pillar     `json:"technicalSkills"`
	TacticalSkills  Pillar     `json:"tacticalSkills"`
	Physicality     Pillar     `json:"physicality"`
	ProgressNotes   string     `json:"progressNotes"`
}

// UnmarshalJSON decodes any syntactically valid JSON. Fields with an
// unexpected shape are zeroed rather than rejected.
func (a *AnalysisResult) UnmarshalJSON(data []byte) error {
	*a = AnalysisResult{}
	fields, ok := objectFields(data)
	if !ok {
		return nil
	}
	_ = a.OverallScore.UnmarshalJSON(fields["overallScore"])
	_ = a.Confidence.UnmarshalJSON(fields["confidence"])
	_ = a.TechnicalSkills.UnmarshalJSON(fields[PillarTechnical])
	_ = a.TacticalSkills.UnmarshalJSON(fields[PillarTactical])
	_ = a.Physicality.UnmarshalJSON(fields[PillarPhysicality])
	if notes := stringList(fields["progressNotes"]); len(notes) > 0 {
		a.ProgressNotes = strings.Join(notes, "\n")
	}
	return nil
}

// Pillars returns the three pillars keyed by their JSON names
func (a *AnalysisResult) Pillars() map[string]Pillar {
	return map[string]Pillar{
		PillarTechnical:   a.TechnicalSkills,
		PillarTactical:    a.TacticalSkills,
		PillarPhysicality: a.Physicality,
	}
}

// Value implements driver.Valuer for database storage
func (a AnalysisResult) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for database retrieval
func (a *AnalysisResult) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// AnalysisSummary condenses a past analysis for prompt context
type AnalysisSummary struct {
	Date         time.Time `json:"date"`
	OverallScore *float64  `json:"overallScore,omitempty"`
	Technical    *float64  `json:"technical,omitempty"`
	Tactical     *float64  `json:"tactical,omitempty"`
	Physicality  *float64  `json:"physicality,omitempty"`
}

// Summarize builds an AnalysisSummary from a stored result
func Summarize(date time.Time, a *AnalysisResult) AnalysisSummary {
	summary := AnalysisSummary{Date: date}
	if a == nil {
		return summary
	}

	overall := float64(a.OverallScore)
	summary.OverallScore = &overall

	if v, ok := a.TechnicalSkills.Score(); ok {
		summary.Technical = &v
	}
	if v, ok := a.TacticalSkills.Score(); ok {
		summary.Tactical = &v
	}
	if v, ok := a.Physicality.Score(); ok {
		summary.Physicality = &v
	}
	return summary
}

// TimeRange is a requested analysis window in seconds. A nil End means
// "to the end of the video".
type TimeRange struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end,omitempty"`
}

// objectFields splits a JSON object into its raw members
func objectFields(data []byte) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func stringValue(data []byte) string {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ""
	}
	return s
}

// stringList accepts an array of strings or a single string. Non-string
// array elements are skipped.
func stringList(data []byte) []string {
	if s := stringValue(data); s != "" {
		return []string{s}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	list := make([]string, 0, len(items))
	for _, item := range items {
		if s := stringValue(item); s != "" {
			list = append(list, s)
		}
	}
	return list
}

func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported scan type %T", value)
	}
}
