// Package cpcore reports applied recommendations back to the CP Core
// instance that originated a bill. Each lab instance is addressed by the fqdn
// stored with its case data.
package cpcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/cloudpathology/cpai/internal/domain/casedata"
)

const (
	tokenIssuer   = "Cloud Pathology"
	tokenUsername = "system"
	tokenTTL      = 10 * time.Minute
)

type Client struct {
	secret     []byte
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cptSecret string, logger zerolog.Logger) *Client {
	return &Client{
		secret: []byte(cptSecret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type tresultPayload struct {
	TestResultList []casedata.TestResultUpdate `json:"test_result_list"`
	App            string                      `json:"app"`
}

// systemToken mints the short-lived CPT header token CP Core expects on
// system-originated writes.
func (c *Client) systemToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":      tokenIssuer,
		"username": tokenUsername,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
	})
	return token.SignedString(c.secret)
}

// NotifyTestResults PUTs the applied recommendation set to the instance's
// tresult endpoint. CP Core signals success with a 200 status and a textual
// "success" marker in the body; anything else is a failure.
func (c *Client) NotifyTestResults(ctx context.Context, fqdn, lID string, updates []casedata.TestResultUpdate) error {
	if fqdn == "" || lID == "" {
		return fmt.Errorf("fqdn and l_id are required to notify CP Core")
	}

	body, err := json.Marshal(tresultPayload{TestResultList: updates, App: "AI"})
	if err != nil {
		return fmt.Errorf("marshal tresult payload: %w", err)
	}

	cpt, err := c.systemToken()
	if err != nil {
		return fmt.Errorf("mint system token: %w", err)
	}

	url := fqdn + "/api/bills/tresult"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build tresult request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("forward", "yes")
	req.Header.Set("l_id", lID)
	req.Header.Set("CPT", cpt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tresult call to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(respBody), "success") {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("l_id", lID).
			Msg("CP Core rejected tresult update")
		return fmt.Errorf("CP Core returned status %d without success marker", resp.StatusCode)
	}

	c.logger.Info().
		Int("updates", len(updates)).
		Str("l_id", lID).
		Msg("CP Core tresult update accepted")
	return nil
}
