package casedata

import (
	"strconv"
	"time"
)

// EmptyValueSentinel is stored in value_text when a result arrives with an
// empty value. Parameters carrying it (or no value at all) are the ones the
// recommendation engine is asked to predict.
const EmptyValueSentinel = "EMPTY"

// PrimaryKey is the composite key identifying one clinical observation across
// time for the same patient-class bucket. bill_id, bill_test_id and test_id
// are deliberately not part of it: a later encounter that lands in the same
// bucket updates the existing row in place.
type PrimaryKey struct {
	Sex              string `json:"sex"`
	ParameterPrintAs string `json:"parameter_printas"`
	AgeGroup         string `json:"age_group"`
	BillDateQuarter  string `json:"bill_date_quarter"`
	CPInstanceID     string `json:"cp_instance_id"`
	TestResultID     string `json:"test_result_id"`
}

// Record maps to the case_data table, one row per (bill, test, parameter)
// observation.
type Record struct {
	BillID           string    `db:"bill_id" json:"bill_id"`
	BillTestID       string    `db:"bill_test_id" json:"bill_test_id"`
	TestID           *string   `db:"test_id" json:"test_id,omitempty"`
	TestResultID     string    `db:"test_result_id" json:"test_result_id"`
	AgeInHours       *int64    `db:"age_in_hours" json:"age_in_hours,omitempty"`
	AgeGroup         string    `db:"age_group" json:"age_group"`
	Sex              string    `db:"sex" json:"sex"`
	CPInstanceID     string    `db:"cp_instance_id" json:"cp_instance_id"`
	LID              string    `db:"l_id" json:"l_id"`
	FQDN             string    `db:"fqdn" json:"fqdn"`
	ParameterID      *string   `db:"parameter_id" json:"parameter_id,omitempty"`
	ParameterName    *string   `db:"parameter_name" json:"parameter_name,omitempty"`
	ParameterPrintAs string    `db:"parameter_printas" json:"parameter_printas"`
	ParameterUnit    *string   `db:"parameter_unit" json:"parameter_unit,omitempty"`
	ValueFloat       *float64  `db:"value_float" json:"value_float,omitempty"`
	ValueText        *string   `db:"value_text" json:"value_text,omitempty"`
	NRValAnalysis    *string   `db:"nrval_analysis" json:"nrval_analysis,omitempty"`
	HelpList         []string  `db:"help_list" json:"help_list,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
	BillDateQuarter  string    `db:"bill_date_quarter" json:"bill_date_quarter"`
}

// Key extracts the composite primary key of the record.
func (r *Record) Key() PrimaryKey {
	return PrimaryKey{
		Sex:              r.Sex,
		ParameterPrintAs: r.ParameterPrintAs,
		AgeGroup:         r.AgeGroup,
		BillDateQuarter:  r.BillDateQuarter,
		CPInstanceID:     r.CPInstanceID,
		TestResultID:     r.TestResultID,
	}
}

// Value is the tagged result of classifying a raw test-result value. Exactly
// one of Float and Text is set.
type Value struct {
	Float *float64
	Text  *string
}

// ClassifyValue parses a raw result value into its numeric or textual form.
// Numeric values become Float; everything else becomes Text, with the empty
// string normalized to EmptyValueSentinel.
func ClassifyValue(raw string) Value {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Value{Float: &f}
	}
	text := raw
	if text == "" {
		text = EmptyValueSentinel
	}
	return Value{Text: &text}
}

// SearchField is the projection used for numeric range search. Built only
// from records whose value_float is present; never persisted.
type SearchField struct {
	Sex              string  `json:"sex"`
	ParameterPrintAs string  `json:"parameter_printas"`
	AgeGroup         string  `json:"age_group"`
	BillDateQuarter  string  `json:"bill_date_quarter"`
	ValueFloat       float64 `json:"value_float"`
	CPInstanceID     string  `json:"cp_instance_id"`
	TestResultID     string  `json:"test_result_id"`
}

// Valid reports whether all categorical fields required by the range-search
// index are populated.
func (f SearchField) Valid() bool {
	return f.Sex != "" && f.ParameterPrintAs != "" && f.AgeGroup != "" &&
		f.BillDateQuarter != "" && f.CPInstanceID != "" && f.TestResultID != ""
}

// TextSearchField is the categorical pre-filter key for a search request. All
// records of one case share these fields, so it is derived from the anchor's
// first record.
type TextSearchField struct {
	Sex             string `json:"sex"`
	AgeGroup        string `json:"age_group"`
	BillDateQuarter string `json:"bill_date_quarter"`
}

// MatchingCase is one promoted candidate in a similarity search result.
type MatchingCase struct {
	BillID          string            `json:"bill_id"`
	MatchPercentage float64           `json:"match_percentage"`
	MatchParameters []string          `json:"match_parameter"`
	Ranges          map[string]string `json:"ranges,omitempty"` // reserved, not populated
}

// SearchResult is the structured outcome of a similarity search.
type SearchResult struct {
	Success      bool                    `json:"success"`
	Message      string                  `json:"message,omitempty"`
	MatchingCase map[string]MatchingCase `json:"matching_case,omitempty"`
}

// Result is the generic {success, message} shape returned by bulk operations.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// UpsertResult is the per-record outcome of an ingestion upsert. Failures are
// captured here instead of aborting sibling records.
type UpsertResult struct {
	Success      bool   `json:"success"`
	TestResultID string `json:"test_result_id"`
	Error        string `json:"error,omitempty"`
}

// Recommendation is one proposed value_text overwrite, targeted by primary
// key. LID and FQDN identify the downstream system to notify after a
// successful bulk apply.
type Recommendation struct {
	ValueText        string `json:"value_text"`
	Sex              string `json:"sex"`
	ParameterPrintAs string `json:"parameter_printas"`
	BillDateQuarter  string `json:"bill_date_quarter"`
	AgeGroup         string `json:"age_group"`
	CPInstanceID     string `json:"cp_instance_id"`
	TestResultID     string `json:"test_result_id"`
	LID              string `json:"l_id"`
	FQDN             string `json:"fqdn"`
}

// Key extracts the composite primary key targeted by the recommendation.
func (r *Recommendation) Key() PrimaryKey {
	return PrimaryKey{
		Sex:              r.Sex,
		ParameterPrintAs: r.ParameterPrintAs,
		AgeGroup:         r.AgeGroup,
		BillDateQuarter:  r.BillDateQuarter,
		CPInstanceID:     r.CPInstanceID,
		TestResultID:     r.TestResultID,
	}
}

// FeedbackUpdate is one human-feedback correction of a stored value_text.
// The caller supplies raw age and bill date; the service derives the bucket.
type FeedbackUpdate struct {
	Value            string `json:"value"`
	Sex              string `json:"sex"`
	ParameterPrintAs string `json:"parameter_printas"`
	BillDate         string `json:"bill_date"`
	AgeInHours       int64  `json:"age_in_hours"`
	CPInstanceID     string `json:"cp_instance_id"`
	TestResultID     string `json:"test_result_id"`
}

// TestResultUpdate is one entry of the downstream CP Core notification
// payload. The formatingOptions spelling is part of the wire contract.
type TestResultUpdate struct {
	FormattingOptions int    `json:"formatingOptions"`
	Value             string `json:"value"`
	OValue            string `json:"oValue"`
	TestResultID      string `json:"test_result_id"`
}

// -- Inbound API request shapes --

// TestResultRequest is one parameter observation in an ingestion batch.
type TestResultRequest struct {
	TestResultID     string   `json:"test_result_id"`
	Value            string   `json:"value"`
	NRValAnalysis    string   `json:"nrval_analysis"`
	ParameterID      string   `json:"parameter_id"`
	ParameterName    string   `json:"parameter_name"`
	ParameterPrintAs string   `json:"parameter_printas"`
	ParameterUnit    string   `json:"parameter_unit"`
	HelpList         []string `json:"help_list"`
}

// TestRequest groups the results of one ordered test.
type TestRequest struct {
	BillTestID string              `json:"bill_test_id"`
	TestID     string              `json:"test_id"`
	Results    []TestResultRequest `json:"results"`
}

// IngestRequest is one inbound encounter: a bill with its tests and results.
type IngestRequest struct {
	BillID       string        `json:"bill_id"`
	BillDate     string        `json:"bill_date"`
	AgeInHours   int64         `json:"age_in_hours"`
	Sex          string        `json:"sex"`
	CPInstanceID string        `json:"cp_instance_id"`
	LID          string        `json:"l_id"`
	FQDN         string        `json:"fqdn"`
	Tests        []TestRequest `json:"tests"`
}

// RequiredParam names one parameter that lacks a measured result together
// with the textual outcomes it is allowed to take.
type RequiredParam struct {
	ParameterName     string   `json:"parameter_name"`
	WhitelistedValues []string `json:"whitelisted_values"`
}
