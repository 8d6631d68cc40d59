package bot

import (
	"strings"
	"testing"
)

// fullData carries every field any message references.
func fullData() map[string]any {
	return map[string]any{
		"Name": "Ana", "BotName": "Zun", "Birthday": "2025-10-28",
		"Bonus": 100.0, "UnitCost": 0.5, "ResetDays": 7,
		"Engine": "gpt-4o-mini", "Storage": "mongo",
		"Balance": 99.5, "Linked": 1, "Questions": int64(1), "Remaining": int64(199),
		"Short": false, "Degraded": false,
		"Bots":  []string{"1. @x_bot"},
		"Cause": "Unauthorized", "Handle": "@x_bot", "Text": "hi", "Seconds": 3,
	}
}

var requiredKeys = []string{
	"start", "about", "help", "chat_mode", "link_guide", "link_button",
	"balance", "stats_empty", "stats",
	"link_usage", "link_invalid_format", "link_invalid_credential", "link_duplicate",
	"link_in_progress", "link_pending", "link_unavailable", "link_success",
	"no_points", "answer_footer", "answer_degraded", "fallback_notice",
	"empty_answer", "backend_unavailable", "retry_later", "rate_limited", "service_degraded",
}

func TestDefaultCatalog_RendersEveryKey(t *testing.T) {
	c := DefaultCatalog()
	for _, key := range requiredKeys {
		t.Run(key, func(t *testing.T) {
			if !c.Has(key) {
				t.Fatalf("catalog missing %q", key)
			}
			got := c.Render(key, fullData())
			if got == key || strings.TrimSpace(got) == "" {
				t.Errorf("Render(%q) = %q", key, got)
			}
			if strings.Contains(got, "<no value>") {
				t.Errorf("Render(%q) left a hole: %q", key, got)
			}
		})
	}
}

func TestCatalog_Formatting(t *testing.T) {
	c := DefaultCatalog()
	data := fullData()

	if got := c.Render("link_success", data); !strings.Contains(got, "+100 points") {
		t.Errorf("link_success = %q, want +100 points", got)
	}
	if got := c.Render("balance", data); !strings.Contains(got, "*99.5*") {
		t.Errorf("balance = %q, want *99.5*", got)
	}
	if got := c.Render("help", data); !strings.Contains(got, "0.5 points per question") {
		t.Errorf("help = %q, want unit cost", got)
	}
}

func TestCatalog_MissingKeyFallsBack(t *testing.T) {
	c, err := LoadCatalog([]byte("greet: \"hi {{.Name}}\"\n"))
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	if got := c.Render("nope", nil); got != "nope" {
		t.Errorf("Render(nope) = %q", got)
	}
	if got := c.Render("greet", map[string]any{}); got != "greet" {
		t.Errorf("Render with missing field = %q, want key", got)
	}
	if got := c.Render("greet", map[string]any{"Name": "Bo"}); got != "hi Bo" {
		t.Errorf("Render = %q", got)
	}
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "a: [unclosed"},
		{"bad template", "a: \"{{.Name\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCatalog([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
