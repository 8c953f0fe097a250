package detect

import (
	"strings"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
)

func TestExplainHoneytokenAccess_Deterministic(t *testing.T) {
	access := core.HoneytokenAccess{
		TokenType: "api_key",
		SourceIP:  "10.0.0.9",
		At:        time.Date(2026, 3, 14, 3, 12, 0, 0, time.UTC),
	}

	first := ExplainHoneytokenAccess(access)
	second := ExplainHoneytokenAccess(access)
	assert.Equal(t, first, second, "identical inputs must render identical text")

	assert.Contains(t, first, "HONEYTOKEN ACCESS")
	assert.Contains(t, first, "api_key")
	assert.Contains(t, first, "10.0.0.9")
	assert.Contains(t, first, "database breach")
	assert.Contains(t, first, "Recommended actions")
}

func TestExplainHoneytokenAccess_UnknownSource(t *testing.T) {
	access := core.HoneytokenAccess{TokenType: "credential", At: time.Now().UTC()}
	assert.Contains(t, ExplainHoneytokenAccess(access), "unknown")
}

func TestExplainAuthFlood(t *testing.T) {
	attempt := core.LoginAttempt{Identity: "deploy-bot", SourceIP: "192.0.2.7"}

	text := ExplainAuthFlood(attempt, 12)
	assert.Contains(t, text, "AUTHENTICATION FLOOD")
	assert.Contains(t, text, "12 consecutive failed login attempts")
	assert.Contains(t, text, `"deploy-bot"`)
	assert.Contains(t, text, "192.0.2.7")
}

func TestExplainExportVolume(t *testing.T) {
	sample := core.DataExportSample{Identity: "analytics", CurrentCount: 60, BaselineRate: 10}

	text := ExplainExportVolume(sample, 500.0)
	assert.Contains(t, text, "DATA EXPORT ANOMALY")
	assert.Contains(t, text, "500.0%")
	assert.Contains(t, text, "60 queries against a baseline of 10")
}

func TestExplainConfigChange_PerClassActions(t *testing.T) {
	base := core.ConfigChange{
		FilePath:     "etc/app/secrets.yaml",
		PreviousHash: "aaaaaaaaaaaaaaaa",
		CurrentHash:  "bbbbbbbbbbbbbbbb",
	}

	tests := []struct {
		class  core.ConfigChangeClass
		phrase string
	}{
		{core.ConfigChangeCredential, "rotate the affected credentials"},
		{core.ConfigChangePrivilege, "revert the privilege change"},
		{core.ConfigChangeNetwork, "change calendar"},
		{core.ConfigChangeGeneral, "review the change with its author"},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			change := base
			change.Class = tt.class
			text := ExplainConfigChange(change)
			assert.Contains(t, text, "CONFIGURATION DRIFT")
			assert.Contains(t, text, "etc/app/secrets.yaml")
			assert.Contains(t, text, tt.phrase)
			// Hashes are truncated for readability
			assert.Contains(t, text, "aaaaaaaaaaaa")
			assert.False(t, strings.Contains(text, "aaaaaaaaaaaaaaaa"))
		})
	}
}

func TestExplainLoginSource(t *testing.T) {
	text := ExplainLoginSource(core.LoginSource{Identity: "alice", Source: "203.0.113.5"})
	assert.Contains(t, text, "UNUSUAL LOGIN SOURCE")
	assert.Contains(t, text, "203.0.113.5")
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "none", shortHash(""))
	assert.Equal(t, "abc", shortHash("abc"))
	assert.Equal(t, "0123456789ab", shortHash("0123456789abcdef"))
}
