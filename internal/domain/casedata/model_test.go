package casedata

import (
	"testing"
)

func TestClassifyValue_Numeric(t *testing.T) {
	v := ClassifyValue("14.5")
	if v.Float == nil || *v.Float != 14.5 {
		t.Fatalf("expected Float=14.5, got %+v", v)
	}
	if v.Text != nil {
		t.Errorf("expected Text to be nil, got %q", *v.Text)
	}
}

func TestClassifyValue_Empty(t *testing.T) {
	v := ClassifyValue("")
	if v.Float != nil {
		t.Errorf("expected Float to be nil, got %v", *v.Float)
	}
	if v.Text == nil || *v.Text != EmptyValueSentinel {
		t.Fatalf("expected Text=%q, got %+v", EmptyValueSentinel, v)
	}
}

func TestClassifyValue_Text(t *testing.T) {
	v := ClassifyValue("POSITIVE")
	if v.Float != nil {
		t.Errorf("expected Float to be nil, got %v", *v.Float)
	}
	if v.Text == nil || *v.Text != "POSITIVE" {
		t.Fatalf("expected Text=POSITIVE, got %+v", v)
	}
}

func TestRecordKey(t *testing.T) {
	r := &Record{
		BillID:           "B1",
		Sex:              "M",
		ParameterPrintAs: "Hgb",
		AgeGroup:         "18-25y",
		BillDateQuarter:  "q24-01",
		CPInstanceID:     "cp1",
		TestResultID:     "tr1",
	}
	key := r.Key()
	want := PrimaryKey{
		Sex:              "M",
		ParameterPrintAs: "Hgb",
		AgeGroup:         "18-25y",
		BillDateQuarter:  "q24-01",
		CPInstanceID:     "cp1",
		TestResultID:     "tr1",
	}
	if key != want {
		t.Errorf("Key() = %+v, want %+v", key, want)
	}
}

func TestSearchFieldValid(t *testing.T) {
	f := SearchField{
		Sex:              "F",
		ParameterPrintAs: "WBC",
		AgeGroup:         "35-50y",
		BillDateQuarter:  "q24-02",
		ValueFloat:       7.2,
		CPInstanceID:     "cp1",
		TestResultID:     "tr2",
	}
	if !f.Valid() {
		t.Error("fully populated field reported invalid")
	}

	f.AgeGroup = ""
	if f.Valid() {
		t.Error("field with missing age_group reported valid")
	}
}
