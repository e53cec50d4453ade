package quest

import (
	"encoding/json"
	"strings"
)

// NotGraded is the display value for an absent grade.
const NotGraded = "Not graded"

// Grade is the decoded form of the polymorphic grade column. Legacy rows
// hold a bare scalar ("B+"); newer rows hold a JSON object with
// detailed_grade and overall_score.
type Grade struct {
	Detailed     map[string]interface{} `json:"detailed"`
	OverallScore string                 `json:"overall_score"`
	Display      string                 `json:"display"`
}

type structuredGrade struct {
	DetailedGrade map[string]interface{} `json:"detailed_grade"`
	OverallScore  string                 `json:"overall_score"`
}

// ParseGrade decodes a raw grade value. It never fails: malformed JSON and
// JSON lacking the structured keys fall back to the legacy scalar form, so a
// bad grade value can never break a page render.
func ParseGrade(raw *string) Grade {
	if raw == nil || *raw == "" {
		return Grade{Display: NotGraded}
	}
	trimmed := strings.TrimSpace(*raw)
	if strings.HasPrefix(trimmed, "{") {
		var sg structuredGrade
		if err := json.Unmarshal([]byte(trimmed), &sg); err == nil &&
			(sg.DetailedGrade != nil || sg.OverallScore != "") {
			return Grade{
				Detailed:     sg.DetailedGrade,
				OverallScore: sg.OverallScore,
				Display:      sg.OverallScore,
			}
		}
	}
	// Legacy scalar grade.
	return Grade{Display: *raw}
}

// FormatGrade returns only the display string for a raw grade value.
func FormatGrade(raw *string) string {
	return ParseGrade(raw).Display
}

// EncodeGrade builds the stored representation of a structured grade.
func EncodeGrade(detailed map[string]interface{}, overallScore string) string {
	raw, _ := json.Marshal(structuredGrade{
		DetailedGrade: detailed,
		OverallScore:  overallScore,
	})
	return string(raw)
}
