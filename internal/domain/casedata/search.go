package casedata

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// Search engine defaults. A candidate bill is promoted once it matches at
// least threshold of the anchor's numeric parameters within rangePercent.
const (
	defaultRangePercent = 20.0
	defaultThreshold    = 0.8
	defaultLimit        = 3
	textSearchLimit     = 1000
)

// SearchService finds historical cases clinically similar to an anchor bill:
// a categorical pre-filter narrows the candidate set, per-parameter numeric
// range queries gather evidence, and a threshold aggregation promotes the
// best candidates with an early exit.
type SearchService struct {
	repo   Repository
	logger zerolog.Logger

	RangePercent float64
	Threshold    float64
	Limit        int
}

func NewSearchService(repo Repository, logger zerolog.Logger) *SearchService {
	return &SearchService{
		repo:         repo,
		logger:       logger,
		RangePercent: defaultRangePercent,
		Threshold:    defaultThreshold,
		Limit:        defaultLimit,
	}
}

// FindSimilarCases runs the full search for the given anchor bill. Anchor and
// pre-filter query faults propagate; individual range-query faults are logged
// and dropped so partial evidence still produces a result.
func (s *SearchService) FindSimilarCases(ctx context.Context, billID string, requiredParams []string) (*SearchResult, error) {
	anchor, err := s.repo.GetByBillID(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("fetch anchor case %s: %w", billID, err)
	}
	if len(anchor) == 0 {
		return &SearchResult{Success: false, Message: "No record found"}, nil
	}

	validBillIDs, err := s.searchValidBillIDs(ctx, anchor[0], requiredParams)
	if err != nil {
		return nil, err
	}
	if len(validBillIDs) == 0 {
		return &SearchResult{Success: false, Message: "No valid bill found"}, nil
	}

	searchFields := s.buildSearchFields(anchor)
	results := s.rangeSearch(ctx, searchFields)
	matching := s.aggregate(billID, results, len(searchFields), validBillIDs)

	return &SearchResult{Success: true, MatchingCase: matching}, nil
}

// searchValidBillIDs performs the categorical pre-filter: bills sharing the
// anchor's (sex, age_group, bill_date_quarter) bucket that carry at least one
// of the required parameters. An empty parameter list short-circuits to an
// empty set without touching the store.
func (s *SearchService) searchValidBillIDs(ctx context.Context, first *Record, requiredParams []string) (map[string]bool, error) {
	if len(requiredParams) == 0 {
		return nil, nil
	}

	f := TextSearchField{
		Sex:             first.Sex,
		AgeGroup:        first.AgeGroup,
		BillDateQuarter: first.BillDateQuarter,
	}
	billIDs, err := s.repo.SearchBillIDs(ctx, f, requiredParams, textSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("categorical pre-filter: %w", err)
	}

	valid := make(map[string]bool, len(billIDs))
	for _, id := range billIDs {
		valid[id] = true
	}
	return valid, nil
}

// buildSearchFields projects the anchor's numeric records into range-search
// fields. Records with missing categorical fields are logged and skipped.
func (s *SearchService) buildSearchFields(anchor []*Record) []SearchField {
	var fields []SearchField
	for _, r := range anchor {
		if r.ValueFloat == nil {
			continue
		}
		f := SearchField{
			Sex:              r.Sex,
			ParameterPrintAs: r.ParameterPrintAs,
			AgeGroup:         r.AgeGroup,
			BillDateQuarter:  r.BillDateQuarter,
			ValueFloat:       *r.ValueFloat,
			CPInstanceID:     r.CPInstanceID,
			TestResultID:     r.TestResultID,
		}
		if !f.Valid() {
			s.logger.Warn().
				Str("bill_id", r.BillID).
				Str("test_result_id", r.TestResultID).
				Msg("skipping search field with missing categorical keys")
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// parameterMatches holds one parameter's range-query outcome.
type parameterMatches struct {
	parameter   string
	rows        []*Record
	searchRange string
	err         error
}

// rangeSearch issues one ±RangePercent query per search field, all launched
// concurrently and awaited together. Failed queries are dropped; the
// remaining evidence is returned in field order.
func (s *SearchService) rangeSearch(ctx context.Context, fields []SearchField) []parameterMatches {
	launched := make([]parameterMatches, len(fields))

	var wg sync.WaitGroup
	for i, f := range fields {
		min := f.ValueFloat * (1 - s.RangePercent/100)
		max := f.ValueFloat * (1 + s.RangePercent/100)
		launched[i].parameter = f.ParameterPrintAs
		launched[i].searchRange = fmt.Sprintf("%.2f - %.2f", min, max)

		wg.Add(1)
		go func(i int, f SearchField, min, max float64) {
			defer wg.Done()
			launched[i].rows, launched[i].err = s.repo.SearchByValueRange(ctx, f, min, max)
		}(i, f, min, max)
	}
	wg.Wait()

	results := make([]parameterMatches, 0, len(fields))
	for _, pm := range launched {
		if pm.err != nil {
			s.logger.Error().Err(pm.err).
				Str("parameter", pm.parameter).
				Str("search_range", pm.searchRange).
				Msg("range query failed, dropping parameter from aggregation")
			continue
		}
		s.logger.Debug().
			Str("parameter", pm.parameter).
			Str("search_range", pm.searchRange).
			Int("rows", len(pm.rows)).
			Msg("range query done")
		results = append(results, pm)
	}
	return results
}

// caseAccum tracks one candidate bill during aggregation. Ranges mirrors the
// result type's reserved field and is intentionally never filled.
type caseAccum struct {
	matches    int
	parameters []string
	paramSeen  map[string]bool
	ranges     map[string]string
}

// aggregate counts per-candidate evidence one parameter result-set at a time.
// A candidate is promoted the moment it reaches the required match count and
// excluded from further counting; a candidate that can no longer reach the
// required count even if it matched every remaining parameter is pruned. The
// whole pass terminates as soon as Limit candidates have been promoted.
func (s *SearchService) aggregate(anchorBillID string, results []parameterMatches, totalFields int, validBillIDs map[string]bool) map[string]MatchingCase {
	found := make(map[string]MatchingCase)
	if totalFields == 0 {
		return found
	}

	requiredMatches := int(float64(totalFields) * s.Threshold)
	if requiredMatches < 1 {
		requiredMatches = 1
	}

	accum := make(map[string]*caseAccum)
	processed := 0

	for _, pm := range results {
		processed++
		remaining := totalFields - processed

		for _, row := range pm.rows {
			billID := row.BillID
			if billID == anchorBillID || !validBillIDs[billID] {
				continue
			}
			if _, promoted := found[billID]; promoted {
				continue
			}

			a := accum[billID]
			if a == nil {
				// A pruned candidate re-entering here would restart from
				// zero and still fail the prune check below, so no
				// separate tombstone set is needed.
				a = &caseAccum{paramSeen: make(map[string]bool)}
				accum[billID] = a
			}
			a.matches++
			if !a.paramSeen[pm.parameter] {
				a.paramSeen[pm.parameter] = true
				a.parameters = append(a.parameters, pm.parameter)
			}

			if a.matches >= requiredMatches {
				found[billID] = MatchingCase{
					BillID:          billID,
					MatchPercentage: math.Round(float64(a.matches)/float64(totalFields)*100) / 100,
					MatchParameters: a.parameters,
					Ranges:          a.ranges,
				}
				delete(accum, billID)
				if len(found) >= s.Limit {
					return found
				}
			} else if a.matches+remaining < requiredMatches {
				delete(accum, billID)
			}
		}
	}
	return found
}
