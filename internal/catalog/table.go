package catalog

import (
	"strings"
)

// TimeFrame tags an edition as the past or present release of a table
type TimeFrame string

const (
	TimeFramePast         TimeFrame = "PAST"
	TimeFramePresent      TimeFrame = "PRESENT"
	TimeFrameUndesignated TimeFrame = "UNDESIGNATED"
)

// ParseTimeFrame maps stored values onto a TimeFrame, defaulting to UNDESIGNATED
func ParseTimeFrame(s string) TimeFrame {
	switch TimeFrame(strings.ToUpper(strings.TrimSpace(s))) {
	case TimeFramePast:
		return TimeFramePast
	case TimeFramePresent:
		return TimeFramePresent
	default:
		return TimeFrameUndesignated
	}
}

// Table is the build recipe header for a subject table
type Table struct {
	Name                 string
	Category             string
	Description          string
	DescriptionSimple    string
	Topics               string
	Universe             string
	SubjectArea          string
	Source               string
	SuppressionThreshold *int
	Tool                 string
	Documentation        string
}

// Threshold returns the suppression threshold when one is declared.
// Zero or negative stored values count as undeclared.
func (t Table) Threshold() (int, bool) {
	if t.SuppressionThreshold == nil || *t.SuppressionThreshold <= 0 {
		return 0, false
	}

	return *t.SuppressionThreshold, true
}

// TopicList splits the comma separated topic string
func (t Table) TopicList() []string {
	if t.Topics == "" {
		return []string{}
	}

	return strings.Split(t.Topics, ",")
}

// Edition points a table at the raw relation holding one release of its data
type Edition struct {
	TableName      string
	Edition        string
	RawTableDB     string
	RawTableSchema string
	RawTableName   string
	TimeFrame      TimeFrame
	Documentation  string
}

// HasSource reports whether the edition names a database and schema to aggregate from
func (e Edition) HasSource() bool {
	return e.RawTableDB != "" && e.RawTableSchema != ""
}

// SourceRelation returns the schema-qualified raw table
func (e Edition) SourceRelation() string {
	return e.RawTableSchema + "." + e.RawTableName
}

// Threshold is a small helper for building tables in code and tests
func Threshold(n int) *int {
	return &n
}
