//go:build integration

// Package integration exercises a running halalscan server end to end:
//
//	ingredient text -> normalization -> rule matching -> overrides -> verdict
//
// Run with: HALALSCAN_TEST_URL=http://localhost:8080 go test -tags=integration -v ./tests/integration/...
//
// The tests create their own rules through POST /rules under a per-run ID
// prefix and deactivate them on cleanup, so they can run against a shared
// database.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("HALALSCAN_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

// Rule mirrors the API rule representation.
type Rule struct {
	ID               string  `json:"id"`
	CompoundPattern  string  `json:"compoundPattern"`
	MatchType        string  `json:"matchType"`
	Priority         int     `json:"priority"`
	RulingDefault    string  `json:"rulingDefault"`
	RulingHanbali    *string `json:"rulingHanbali,omitempty"`
	Confidence       float64 `json:"confidence"`
	Explanation      string  `json:"explanation"`
	OverridesKeyword string  `json:"overridesKeyword,omitempty"`
	IsActive         *bool   `json:"isActive,omitempty"`
}

// Verdict mirrors the POST /resolve response.
type Verdict struct {
	Text       string  `json:"text"`
	Normalized string  `json:"normalized"`
	Madhab     string  `json:"madhab"`
	Ruling     string  `json:"ruling"`
	Confidence float64 `json:"confidence"`
	Matches    []struct {
		RuleID  string `json:"ruleId"`
		Pattern string `json:"pattern"`
		Ruling  string `json:"ruling"`
	} `json:"matches"`
}

func call(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL()+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func createRule(t *testing.T, rule Rule) {
	t.Helper()

	status, body := call(t, http.MethodPost, "/rules", rule)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201 creating %s, got %d: %s", rule.ID, status, body)
	}
	t.Cleanup(func() {
		call(t, http.MethodDelete, "/rules/"+rule.ID, nil)
	})
}

func resolve(t *testing.T, text, madhab string) Verdict {
	t.Helper()

	status, body := call(t, http.MethodPost, "/resolve", map[string]string{"text": text, "madhab": madhab})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	var v Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("Failed to unmarshal verdict: %v (body: %s)", err, body)
	}
	return v
}

// seedScenario creates a keyword rule and a compound rule that overrides it.
func seedScenario(t *testing.T) (keyword, compound string) {
	t.Helper()

	run := fmt.Sprintf("it%d", time.Now().UnixNano())
	keyword = run + "wine"
	compound = keyword + " vinegar"
	doubtful := "doubtful"

	createRule(t, Rule{
		ID: run + "-keyword", CompoundPattern: keyword, MatchType: "word_boundary",
		Priority: 10, RulingDefault: "haram", Confidence: 0.95, Explanation: "intoxicant",
	})
	createRule(t, Rule{
		ID: run + "-compound", CompoundPattern: compound, MatchType: "contains",
		Priority: 20, RulingDefault: "halal", RulingHanbali: &doubtful, Confidence: 0.85,
		Explanation: "transformed", OverridesKeyword: keyword,
	})
	return keyword, compound
}

func TestHealth(t *testing.T) {
	status, body := call(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
}

func TestKeywordAlone_Haram(t *testing.T) {
	keyword, _ := seedScenario(t)

	v := resolve(t, "sugar, "+keyword+", salt", "")
	if v.Ruling != "haram" {
		t.Errorf("Expected haram, got %s (%+v)", v.Ruling, v.Matches)
	}
}

func TestCompoundOverridesKeyword(t *testing.T) {
	keyword, compound := seedScenario(t)

	v := resolve(t, compound, "")
	if v.Ruling != "halal" {
		t.Errorf("Expected halal, got %s", v.Ruling)
	}
	for _, m := range v.Matches {
		if m.Pattern == keyword {
			t.Errorf("Keyword %q must be suppressed by the compound rule", keyword)
		}
	}

	v = resolve(t, compound, "hanbali")
	if v.Ruling != "doubtful" {
		t.Errorf("Expected doubtful for hanbali, got %s", v.Ruling)
	}
}

func TestDeactivationTakesEffect(t *testing.T) {
	keyword, _ := seedScenario(t)

	if v := resolve(t, keyword, ""); v.Ruling != "haram" {
		t.Fatalf("Expected haram before deactivation, got %s", v.Ruling)
	}

	var keywordID string
	status, body := call(t, http.MethodGet, "/rules?active=true", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var list struct {
		Rules []Rule `json:"rules"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to unmarshal rules: %v", err)
	}
	for _, r := range list.Rules {
		if r.CompoundPattern == keyword {
			keywordID = r.ID
		}
	}
	if keywordID == "" {
		t.Fatal("Seeded keyword rule not listed as active")
	}

	if status, _ := call(t, http.MethodDelete, "/rules/"+keywordID, nil); status != http.StatusOK {
		t.Fatalf("Expected 200 deactivating, got %d", status)
	}

	if v := resolve(t, keyword, ""); v.Ruling != "unknown" {
		t.Errorf("Expected unknown after deactivation, got %s", v.Ruling)
	}
}

func TestOverrideCycleRejected(t *testing.T) {
	keyword, compound := seedScenario(t)

	status, body := call(t, http.MethodPost, "/rules", Rule{
		CompoundPattern: keyword, MatchType: "contains", RulingDefault: "haram",
		Priority: 30, OverridesKeyword: compound,
	})
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for an override cycle, got %d: %s", status, body)
	}
}

func TestBatchKeepsOrder(t *testing.T) {
	keyword, compound := seedScenario(t)

	status, body := call(t, http.MethodPost, "/resolve/batch", map[string]any{
		"ingredients": []string{keyword, "water", compound},
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	var resp struct {
		Verdicts []Verdict `json:"verdicts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal batch: %v", err)
	}

	want := []string{"haram", "unknown", "halal"}
	if len(resp.Verdicts) != len(want) {
		t.Fatalf("Expected %d verdicts, got %d", len(want), len(resp.Verdicts))
	}
	for i, v := range resp.Verdicts {
		if v.Ruling != want[i] {
			t.Errorf("Verdict %d: expected %s, got %s", i, want[i], v.Ruling)
		}
	}
}
