package casedata

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestGroupAgeInHours_Boundaries(t *testing.T) {
	cases := []struct {
		hours int64
		want  string
	}{
		{-1, "Invalid age"},
		{0, "0-24h"},
		{24, "0-24h"},
		{25, "1-7d"},
		{168, "1-7d"},
		{169, "8-28d"},
		{672, "8-28d"},
		{673, "1-3m"},
		{2160, "1-3m"},
		{2161, "3-6m"},
		{4320, "3-6m"},
		{4321, "6-12m"},
		{8760, "6-12m"},
		{8761, "1-2y"},
		{17520, "1-2y"},
		{17521, "2-3y"},
		{26280, "2-3y"},
		{26281, "3-6y"},
		{52560, "3-6y"},
		{52561, "6-9y"},
		{78840, "6-9y"},
		{78841, "9-12y"},
		{105120, "9-12y"},
		{105121, "12-15y"},
		{131400, "12-15y"},
		{131401, "15-18y"},
		{157680, "15-18y"},
		{157681, "18-25y"},
		{218400, "18-25y"},
		{218401, "25-35y"},
		{306600, "25-35y"},
		{306601, "35-50y"},
		{438000, "35-50y"},
		{438001, "50-65y"},
		{569400, "50-65y"},
		{569401, "65-80y"},
		{700800, "65-80y"},
		{700801, "80-95y"},
		{832200, "80-95y"},
		{832201, "95y+"},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dh", tc.hours), func(t *testing.T) {
			if got := GroupAgeInHours(tc.hours); got != tc.want {
				t.Errorf("GroupAgeInHours(%d) = %q, want %q", tc.hours, got, tc.want)
			}
		})
	}
}

func TestGroupAgeInHours_TotalOverBands(t *testing.T) {
	// Every non-negative age must land in exactly one of the 19 bands or 95y+.
	labels := make(map[string]bool)
	for h := int64(0); h <= 900000; h += 13 {
		labels[GroupAgeInHours(h)] = true
	}
	if labels["Invalid age"] {
		t.Fatal("non-negative input classified as invalid")
	}
	if len(labels) != 20 {
		t.Errorf("expected 20 distinct labels across the range, got %d", len(labels))
	}
}

func TestBillDateQuarter(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"2024-02-15", "q24-01"},
		{"2024-04-01", "q24-02"},
		{"2024-08-20", "q24-03"},
		{"2024-11-11", "q24-04"},
		{"2025-12-31", "q25-04"},
		{"2025-01-01", "q25-01"},
	}
	for _, tc := range cases {
		got, err := BillDateQuarter(tc.date)
		if err != nil {
			t.Fatalf("BillDateQuarter(%q) returned error: %v", tc.date, err)
		}
		if got != tc.want {
			t.Errorf("BillDateQuarter(%q) = %q, want %q", tc.date, got, tc.want)
		}
	}
}

func TestBillDateQuarter_InvalidFormat(t *testing.T) {
	for _, date := range []string{"bad-date", "2024/02/15", "15-02-2024"} {
		if _, err := BillDateQuarter(date); !errors.Is(err, ErrInvalidDateFormat) {
			t.Errorf("BillDateQuarter(%q) error = %v, want ErrInvalidDateFormat", date, err)
		}
	}
}

func TestBillDateQuarter_DefaultsToNow(t *testing.T) {
	got, err := BillDateQuarter("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now := time.Now().UTC()
	want := fmt.Sprintf("q%02d-0%d", now.Year()%100, (int(now.Month())-1)/3+1)
	if got != want {
		t.Errorf("BillDateQuarter(\"\") = %q, want %q", got, want)
	}
}
