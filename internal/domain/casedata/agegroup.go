package casedata

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDateFormat is returned by BillDateQuarter for dates that are not
// yyyy-MM-dd.
var ErrInvalidDateFormat = errors.New("invalid date format, should be yyyy-MM-dd")

// InvalidAgeGroup is returned by GroupAgeInHours for negative input.
const InvalidAgeGroup = "Invalid age"

type ageBand struct {
	maxHours int64
	label    string
}

// Clinical age bands, inclusive on the upper bound. The table is a domain
// invariant: reference ranges are bucketed by exactly these labels, so a
// boundary shift would silently split buckets.
var ageBands = []ageBand{
	{24, "0-24h"},
	{168, "1-7d"},
	{672, "8-28d"},
	{2160, "1-3m"},
	{4320, "3-6m"},
	{8760, "6-12m"},
	{17520, "1-2y"},
	{26280, "2-3y"},
	{52560, "3-6y"},
	{78840, "6-9y"},
	{105120, "9-12y"},
	{131400, "12-15y"},
	{157680, "15-18y"},
	{218400, "18-25y"},
	{306600, "25-35y"},
	{438000, "35-50y"},
	{569400, "50-65y"},
	{700800, "65-80y"},
	{832200, "80-95y"},
}

// GroupAgeInHours maps a patient age in hours to its clinical age band.
func GroupAgeInHours(ageInHours int64) string {
	if ageInHours < 0 {
		return InvalidAgeGroup
	}
	for _, band := range ageBands {
		if ageInHours <= band.maxHours {
			return band.label
		}
	}
	return "95y+"
}

// BillDateQuarter maps a yyyy-MM-dd date to its "qYY-0N" quarter label. An
// empty date defaults to the current UTC date.
func BillDateQuarter(date string) (string, error) {
	var t time.Time
	if date == "" {
		t = time.Now().UTC()
	} else {
		var err error
		t, err = time.Parse("2006-01-02", date)
		if err != nil {
			return "", ErrInvalidDateFormat
		}
	}

	quarter := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("q%02d-0%d", t.Year()%100, quarter), nil
}
