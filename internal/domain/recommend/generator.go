// Package recommend turns a stored case and its similar historical cases
// into a language-model prompt, and the model's reply into validated
// recommendation writes for the parameters that lack a measured result.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloudpathology/cpai/internal/domain/casedata"
)

const hoursPerYear = 8760

// LLMClient generates free text for a prompt. The reply is expected to carry
// one fenced JSON block with the predictions.
type LLMClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Generator implements casedata.RecommendationEngine on top of an LLM client
// and a configured prompt template.
type Generator struct {
	llm            LLMClient
	promptTemplate string
	logger         zerolog.Logger
}

func NewGenerator(llm LLMClient, promptTemplate string, logger zerolog.Logger) *Generator {
	return &Generator{llm: llm, promptTemplate: promptTemplate, logger: logger}
}

// analyzedParameter is one measured parameter presented to the model as
// context.
type analyzedParameter struct {
	Name           string   `json:"name"`
	Value          *float64 `json:"value"`
	ReferenceRange string   `json:"reference_range"`
}

// similarCaseSummary is one promoted search candidate presented to the model.
type similarCaseSummary struct {
	CaseID          string   `json:"case_id"`
	MatchPercentage float64  `json:"match_percentage"`
	MatchParameters []string `json:"match_parameters"`
}

// Recommend builds the prompt for the case, invokes the model, and maps its
// predictions back onto the stored records. An absent or unparseable
// prediction block yields no recommendations, not an error.
func (g *Generator) Recommend(ctx context.Context, records []*casedata.Record, similar *casedata.SearchResult) ([]casedata.Recommendation, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to recommend for")
	}

	required := casedata.ExtractRequiredParams(records)
	if len(required) == 0 {
		g.logger.Info().Str("bill_id", records[0].BillID).Msg("no parameters need recommendations")
		return nil, nil
	}

	prompt, err := g.buildPrompt(records, required, similar)
	if err != nil {
		return nil, err
	}

	reply, err := g.llm.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}

	predictions := ExtractPredictions(reply)
	if len(predictions) == 0 {
		g.logger.Info().Str("bill_id", records[0].BillID).Msg("model reply carried no predictions")
		return nil, nil
	}

	byParameter := make(map[string]*casedata.Record, len(records))
	for _, r := range records {
		if _, ok := byParameter[r.ParameterPrintAs]; !ok {
			byParameter[r.ParameterPrintAs] = r
		}
	}

	var recommendations []casedata.Recommendation
	seen := make(map[string]bool)
	for _, p := range predictions {
		if seen[p.ParameterName] {
			continue
		}
		seen[p.ParameterName] = true

		r, ok := byParameter[p.ParameterName]
		if !ok {
			g.logger.Warn().Str("parameter", p.ParameterName).Msg("prediction for unknown parameter, dropping")
			continue
		}
		recommendations = append(recommendations, casedata.Recommendation{
			ValueText:        p.Prediction,
			Sex:              r.Sex,
			ParameterPrintAs: p.ParameterName,
			AgeGroup:         r.AgeGroup,
			BillDateQuarter:  r.BillDateQuarter,
			CPInstanceID:     r.CPInstanceID,
			TestResultID:     r.TestResultID,
			LID:              r.LID,
			FQDN:             r.FQDN,
		})
	}
	return recommendations, nil
}

// buildPrompt fills the configured template. Placeholders follow the
// template's contract: {age}, {sex}, {analyzed_parameters},
// {prediction_requirements}, {similar_cases_data}.
func (g *Generator) buildPrompt(records []*casedata.Record, required []casedata.RequiredParam, similar *casedata.SearchResult) (string, error) {
	if g.promptTemplate == "" {
		return "", fmt.Errorf("prompt template is not configured")
	}

	first := records[0]
	if first.AgeInHours == nil {
		return "", fmt.Errorf("age_in_hours missing on case %s", first.BillID)
	}
	ageYears := float64(*first.AgeInHours) / hoursPerYear

	var analyzed []analyzedParameter
	for _, r := range records {
		if len(r.HelpList) > 0 && r.ValueFloat == nil &&
			(r.ValueText == nil || *r.ValueText == casedata.EmptyValueSentinel) {
			continue // awaiting prediction, not context
		}
		p := analyzedParameter{Name: r.ParameterPrintAs, Value: r.ValueFloat}
		if r.NRValAnalysis != nil {
			p.ReferenceRange = *r.NRValAnalysis
		}
		analyzed = append(analyzed, p)
	}

	var similarSummaries []similarCaseSummary
	if similar != nil && similar.Success {
		for _, mc := range similar.MatchingCase {
			similarSummaries = append(similarSummaries, similarCaseSummary{
				CaseID:          mc.BillID,
				MatchPercentage: mc.MatchPercentage,
				MatchParameters: mc.MatchParameters,
			})
		}
	}

	analyzedJSON, err := json.Marshal(analyzed)
	if err != nil {
		return "", fmt.Errorf("marshal analyzed parameters: %w", err)
	}
	requiredJSON, err := json.Marshal(required)
	if err != nil {
		return "", fmt.Errorf("marshal prediction requirements: %w", err)
	}
	similarJSON := []byte("[]")
	if len(similarSummaries) > 0 {
		similarJSON, err = json.Marshal(similarSummaries)
		if err != nil {
			return "", fmt.Errorf("marshal similar cases: %w", err)
		}
	}

	replacer := strings.NewReplacer(
		"{age}", fmt.Sprintf("%g", ageYears),
		"{sex}", first.Sex,
		"{analyzed_parameters}", string(analyzedJSON),
		"{prediction_requirements}", string(requiredJSON),
		"{similar_cases_data}", string(similarJSON),
	)
	return replacer.Replace(g.promptTemplate), nil
}
