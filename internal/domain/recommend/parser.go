package recommend

import (
	"encoding/json"
	"strings"
)

// Prediction is one parameter/value pair extracted from the model's fenced
// JSON block.
type Prediction struct {
	ParameterName string `json:"parameter_name"`
	Prediction    string `json:"prediction"`
}

type predictionsEnvelope struct {
	Predictions []Prediction `json:"predictions"`
}

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// ExtractPredictions pulls the predictions out of a model reply. The reply is
// expected to embed one fenced block shaped
// {"predictions": [{"parameter_name", "prediction"}, ...]}; a missing or
// malformed block yields nil rather than an error, since an unusable reply
// simply means no recommendations.
func ExtractPredictions(reply string) []Prediction {
	start := strings.Index(reply, fenceOpen)
	if start < 0 {
		return nil
	}
	start += len(fenceOpen)

	end := strings.Index(reply[start:], fenceClose)
	if end < 0 {
		return nil
	}

	var envelope predictionsEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply[start:start+end])), &envelope); err != nil {
		return nil
	}
	return envelope.Predictions
}
