package casedata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ingestBatchSize bounds the number of in-flight upserts: full concurrency
// within a group, strict sequencing between groups.
const ingestBatchSize = 10

// CoreNotifier reports applied recommendations back to the originating CP
// Core instance.
type CoreNotifier interface {
	NotifyTestResults(ctx context.Context, fqdn, lID string, updates []TestResultUpdate) error
}

// RecommendationEngine produces value recommendations for the parameters of a
// case that lack a measured result.
type RecommendationEngine interface {
	Recommend(ctx context.Context, records []*Record, similar *SearchResult) ([]Recommendation, error)
}

// Service owns case_data persistence and the ingestion pipeline.
type Service struct {
	repo   Repository
	search *SearchService
	engine RecommendationEngine
	core   CoreNotifier
	logger zerolog.Logger
}

func NewService(repo Repository, search *SearchService, engine RecommendationEngine, core CoreNotifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, search: search, engine: engine, core: core, logger: logger}
}

// Upsert writes one record: insert when its primary key is unseen, otherwise
// update-in-place preserving created_at. Faults are captured in the returned
// outcome so sibling records of a batch are unaffected.
func (s *Service) Upsert(ctx context.Context, r *Record) UpsertResult {
	existing, err := s.repo.GetByPrimaryKey(ctx, r.Key())
	if err != nil {
		s.logger.Error().Err(err).Str("bill_id", r.BillID).Msg("upsert existence check failed")
		return UpsertResult{Success: false, TestResultID: r.TestResultID, Error: err.Error()}
	}

	now := time.Now().UTC()
	r.UpdatedAt = now
	if existing == nil {
		r.CreatedAt = now
		err = s.repo.Insert(ctx, r)
	} else {
		r.CreatedAt = existing.CreatedAt
		err = s.repo.Update(ctx, r)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("bill_id", r.BillID).Msg("upsert write failed")
		return UpsertResult{Success: false, TestResultID: r.TestResultID, Error: err.Error()}
	}
	return UpsertResult{Success: true, TestResultID: r.TestResultID}
}

// IngestRecords upserts records in groups of ingestBatchSize. Outcomes are
// returned in input order.
func (s *Service) IngestRecords(ctx context.Context, records []*Record) []UpsertResult {
	results := make([]UpsertResult, len(records))
	for start := 0; start < len(records); start += ingestBatchSize {
		end := start + ingestBatchSize
		if end > len(records) {
			end = len(records)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.Upsert(ctx, records[i])
			}(i)
		}
		wg.Wait()
	}
	return results
}

// GetByBillID returns the stored case for one bill. Faults propagate.
func (s *Service) GetByBillID(ctx context.Context, billID string) ([]*Record, error) {
	return s.repo.GetByBillID(ctx, billID)
}

// ProcessCaseData runs the full ingestion pipeline: persist the batch, search
// for similar historical cases, ask the recommendation engine for the
// parameters that lack a result, and apply what comes back. Recommendation
// and apply failures are logged, not fatal, since the ingest itself succeeded.
func (s *Service) ProcessCaseData(ctx context.Context, req *IngestRequest) (*Result, error) {
	records, err := PrepareRecords(req)
	if err != nil {
		return nil, err
	}

	outcomes := s.IngestRecords(ctx, records)
	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warn().Int("failed", failed).Int("total", len(outcomes)).
			Str("bill_id", req.BillID).Msg("some records failed to persist")
	}

	required := ExtractRequiredParams(records)
	names := make([]string, len(required))
	for i, p := range required {
		names[i] = p.ParameterName
	}

	similar, err := s.search.FindSimilarCases(ctx, req.BillID, names)
	if err != nil {
		return nil, fmt.Errorf("similar case search: %w", err)
	}

	recommendations, err := s.engine.Recommend(ctx, records, similar)
	if err != nil {
		s.logger.Error().Err(err).Str("bill_id", req.BillID).Msg("recommendation generation failed")
		recommendations = nil
	}

	applied := s.ApplyRecommendations(ctx, recommendations)
	s.logger.Info().
		Bool("applied", applied.Success).
		Str("detail", applied.Message).
		Str("bill_id", req.BillID).
		Msg("recommendation apply finished")

	return &Result{Success: true}, nil
}

// ApplyRecommendations validates each proposed value against the stored
// record's whitelist and writes the survivors. The downstream CP Core
// notification fires only when every submitted item validated and wrote
// successfully; the callback expects a complete, consistent set.
func (s *Service) ApplyRecommendations(ctx context.Context, items []Recommendation) *Result {
	if len(items) == 0 {
		return &Result{Success: false, Message: "No valid updates to perform"}
	}

	type fetched struct {
		rec *Record
		err error
	}
	validation := make([]fetched, len(items))

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			validation[i].rec, validation[i].err = s.repo.GetByPrimaryKey(ctx, items[i].Key())
		}(i)
	}
	wg.Wait()

	var valid []Recommendation
	for i, v := range validation {
		switch {
		case v.err != nil:
			s.logger.Error().Err(v.err).
				Str("test_result_id", items[i].TestResultID).
				Msg("recommendation validation fetch failed")
		case v.rec == nil:
			s.logger.Warn().
				Str("test_result_id", items[i].TestResultID).
				Msg("recommendation target record not found")
		case !contains(v.rec.HelpList, items[i].ValueText):
			s.logger.Warn().
				Str("test_result_id", items[i].TestResultID).
				Str("value_text", items[i].ValueText).
				Msg("recommendation value not in whitelist")
		default:
			valid = append(valid, items[i])
		}
	}
	if len(valid) == 0 {
		return &Result{Success: false, Message: "No valid updates to perform"}
	}

	writeErrs := make([]error, len(valid))
	var wwg sync.WaitGroup
	for i := range valid {
		wwg.Add(1)
		go func(i int) {
			defer wwg.Done()
			writeErrs[i] = s.repo.UpdateValueText(ctx, valid[i].Key(), valid[i].ValueText)
		}(i)
	}
	wwg.Wait()

	successCount := 0
	updates := make([]TestResultUpdate, 0, len(valid))
	for i, err := range writeErrs {
		if err != nil {
			s.logger.Error().Err(err).
				Str("test_result_id", valid[i].TestResultID).
				Msg("recommendation write failed")
			continue
		}
		successCount++
		updates = append(updates, TestResultUpdate{
			FormattingOptions: 2,
			Value:             valid[i].ValueText,
			OValue:            "",
			TestResultID:      valid[i].TestResultID,
		})
	}

	if successCount != len(items) {
		return &Result{Success: false, Message: fmt.Sprintf("Successfully updated %d / %d", successCount, len(items))}
	}

	if err := s.core.NotifyTestResults(ctx, items[0].FQDN, items[0].LID, updates); err != nil {
		s.logger.Error().Err(err).Msg("CP Core notification failed")
		return &Result{Success: false, Message: "Error updating CP Core"}
	}
	return &Result{Success: true, Message: fmt.Sprintf("Successfully updated CP Core and CP AI: %d / %d", successCount, len(items))}
}

// UpdateBulkFeedback overwrites value_text for human-corrected results. The
// caller supplies raw age and bill date; the bucket fields are derived here.
// A malformed date fails the whole request up front.
func (s *Service) UpdateBulkFeedback(ctx context.Context, items []FeedbackUpdate) (*Result, error) {
	keys := make([]PrimaryKey, len(items))
	for i, item := range items {
		quarter, err := BillDateQuarter(item.BillDate)
		if err != nil {
			return nil, fmt.Errorf("feedback item %s: %w", item.TestResultID, err)
		}
		keys[i] = PrimaryKey{
			Sex:              item.Sex,
			ParameterPrintAs: item.ParameterPrintAs,
			AgeGroup:         GroupAgeInHours(item.AgeInHours),
			BillDateQuarter:  quarter,
			CPInstanceID:     item.CPInstanceID,
			TestResultID:     item.TestResultID,
		}
	}

	writeErrs := make([]error, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			writeErrs[i] = s.repo.UpdateValueText(ctx, keys[i], items[i].Value)
		}(i)
	}
	wg.Wait()

	successCount := 0
	for i, err := range writeErrs {
		if err != nil {
			s.logger.Error().Err(err).
				Str("test_result_id", items[i].TestResultID).
				Msg("feedback write failed")
			continue
		}
		successCount++
	}
	if successCount != len(items) {
		return &Result{Success: false, Message: fmt.Sprintf("Updated %d / %d", successCount, len(items))}, nil
	}
	return &Result{Success: true, Message: "Successfully updated value_text"}, nil
}

// PrepareRecords normalizes an inbound encounter into case_data records,
// classifying each raw value as numeric or text and deriving the age band and
// quarter bucket fields shared by the whole bill.
func PrepareRecords(req *IngestRequest) ([]*Record, error) {
	quarter, err := BillDateQuarter(req.BillDate)
	if err != nil {
		return nil, err
	}
	ageGroup := GroupAgeInHours(req.AgeInHours)
	ageInHours := req.AgeInHours

	var records []*Record
	for _, test := range req.Tests {
		for _, result := range test.Results {
			value := ClassifyValue(result.Value)
			r := &Record{
				BillID:           req.BillID,
				BillTestID:       test.BillTestID,
				TestResultID:     result.TestResultID,
				AgeInHours:       &ageInHours,
				AgeGroup:         ageGroup,
				Sex:              req.Sex,
				CPInstanceID:     req.CPInstanceID,
				LID:              req.LID,
				FQDN:             req.FQDN,
				ParameterPrintAs: result.ParameterPrintAs,
				ValueFloat:       value.Float,
				ValueText:        value.Text,
				HelpList:         result.HelpList,
				BillDateQuarter:  quarter,
			}
			if test.TestID != "" {
				r.TestID = &test.TestID
			}
			if result.ParameterID != "" {
				r.ParameterID = &result.ParameterID
			}
			if result.ParameterName != "" {
				r.ParameterName = &result.ParameterName
			}
			if result.ParameterUnit != "" {
				r.ParameterUnit = &result.ParameterUnit
			}
			if result.NRValAnalysis != "" {
				r.NRValAnalysis = &result.NRValAnalysis
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// ExtractRequiredParams returns the parameters of a case that carry a
// whitelist but no measured value, the ones worth asking the recommendation
// engine about.
func ExtractRequiredParams(records []*Record) []RequiredParam {
	var params []RequiredParam
	for _, r := range records {
		if len(r.HelpList) == 0 || r.ValueFloat != nil {
			continue
		}
		if r.ValueText != nil && *r.ValueText != EmptyValueSentinel {
			continue
		}
		params = append(params, RequiredParam{
			ParameterName:     r.ParameterPrintAs,
			WhitelistedValues: r.HelpList,
		})
	}
	return params
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
