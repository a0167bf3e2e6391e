package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cloudpathology/cpai/internal/domain/casedata"
)

type fakeLLM struct {
	prompt string
	reply  string
	err    error
	calls  int
}

func (f *fakeLLM) GenerateText(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

const testTemplate = "Patient: {age} years, {sex}. Analyzed: {analyzed_parameters}. " +
	"Predict: {prediction_requirements}. Similar: {similar_cases_data}."

func caseRecords() []*casedata.Record {
	age := int64(219000) // 25 years
	hgb := 14.5
	empty := casedata.EmptyValueSentinel
	nrval := "13.0-17.0"
	return []*casedata.Record{
		{
			BillID: "B1", TestResultID: "tr1", AgeInHours: &age, AgeGroup: "25-35y",
			Sex: "M", CPInstanceID: "cp1", LID: "l1", FQDN: "https://lab.example.com",
			ParameterPrintAs: "Hgb", ValueFloat: &hgb, NRValAnalysis: &nrval,
			BillDateQuarter: "q24-01",
		},
		{
			BillID: "B1", TestResultID: "tr2", AgeInHours: &age, AgeGroup: "25-35y",
			Sex: "M", CPInstanceID: "cp1", LID: "l1", FQDN: "https://lab.example.com",
			ParameterPrintAs: "COVID", ValueText: &empty,
			HelpList:        []string{"POSITIVE", "NEGATIVE"},
			BillDateQuarter: "q24-01",
		},
	}
}

func TestRecommend(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"predictions\": [{\"parameter_name\": \"COVID\", \"prediction\": \"NEGATIVE\"}]}\n```"}
	g := NewGenerator(llm, testTemplate, zerolog.Nop())

	similar := &casedata.SearchResult{
		Success: true,
		MatchingCase: map[string]casedata.MatchingCase{
			"B2": {BillID: "B2", MatchPercentage: 1.0, MatchParameters: []string{"Hgb"}},
		},
	}
	recs, err := g.Recommend(context.Background(), caseRecords(), similar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d: %+v", len(recs), recs)
	}

	rec := recs[0]
	if rec.ParameterPrintAs != "COVID" || rec.ValueText != "NEGATIVE" {
		t.Errorf("unexpected recommendation: %+v", rec)
	}
	if rec.TestResultID != "tr2" || rec.LID != "l1" || rec.FQDN != "https://lab.example.com" {
		t.Errorf("recommendation not targeted at the stored record: %+v", rec)
	}

	// Template substitution.
	for _, want := range []string{"25 years, M", `"name":"Hgb"`, `"13.0-17.0"`, `"parameter_name":"COVID"`, `"case_id":"B2"`} {
		if !strings.Contains(llm.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, llm.prompt)
		}
	}
	// The parameter awaiting prediction must not appear as analyzed context.
	if strings.Contains(llm.prompt, `"name":"COVID"`) {
		t.Errorf("awaiting parameter leaked into analyzed context:\n%s", llm.prompt)
	}
	for _, placeholder := range []string{"{age}", "{sex}", "{analyzed_parameters}", "{prediction_requirements}", "{similar_cases_data}"} {
		if strings.Contains(llm.prompt, placeholder) {
			t.Errorf("unreplaced placeholder %s in prompt", placeholder)
		}
	}
}

func TestRecommend_NoRequiredParamsSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	g := NewGenerator(llm, testTemplate, zerolog.Nop())

	hgb := 14.5
	age := int64(219000)
	records := []*casedata.Record{{
		BillID: "B1", TestResultID: "tr1", AgeInHours: &age, Sex: "M",
		ParameterPrintAs: "Hgb", ValueFloat: &hgb,
	}}
	recs, err := g.Recommend(context.Background(), records, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs != nil {
		t.Errorf("expected nil recommendations, got %+v", recs)
	}
	if llm.calls != 0 {
		t.Errorf("model must not be invoked with nothing to predict, got %d calls", llm.calls)
	}
}

func TestRecommend_NoRecords(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, testTemplate, zerolog.Nop())
	if _, err := g.Recommend(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for empty case")
	}
}

func TestRecommend_LLMErrorPropagates(t *testing.T) {
	llm := &fakeLLM{err: errors.New("rate limited")}
	g := NewGenerator(llm, testTemplate, zerolog.Nop())
	if _, err := g.Recommend(context.Background(), caseRecords(), nil); err == nil {
		t.Fatal("expected error from model failure")
	}
}

func TestRecommend_DuplicateAndUnknownPredictions(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"predictions\": [" +
		`{"parameter_name": "COVID", "prediction": "NEGATIVE"},` +
		`{"parameter_name": "COVID", "prediction": "POSITIVE"},` +
		`{"parameter_name": "Dengue", "prediction": "NEGATIVE"}` +
		"]}\n```"}
	g := NewGenerator(llm, testTemplate, zerolog.Nop())

	recs, err := g.Recommend(context.Background(), caseRecords(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation after dedupe and unknown drop, got %d: %+v", len(recs), recs)
	}
	if recs[0].ValueText != "NEGATIVE" {
		t.Errorf("dedupe must keep the first prediction, got %+v", recs[0])
	}
}

func TestRecommend_UnusableReplyYieldsNothing(t *testing.T) {
	llm := &fakeLLM{reply: "I am unable to help with that."}
	g := NewGenerator(llm, testTemplate, zerolog.Nop())

	recs, err := g.Recommend(context.Background(), caseRecords(), nil)
	if err != nil {
		t.Fatalf("unusable reply must not be an error: %v", err)
	}
	if recs != nil {
		t.Errorf("expected nil recommendations, got %+v", recs)
	}
}

func TestRecommend_MissingTemplate(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, "", zerolog.Nop())
	if _, err := g.Recommend(context.Background(), caseRecords(), nil); err == nil {
		t.Fatal("expected error for unconfigured template")
	}
}
