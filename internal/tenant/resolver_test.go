package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/utils"
)

func testConfig() *config.Config {
	uk := config.TenantConfig{BusinessNumber: "447464177761", Name: "infobot", AccessToken: "token-uk", PhoneNumberID: "1111", AssistantID: "asst_uk"}
	smmart := config.TenantConfig{BusinessNumber: "447510698847", Name: "smmart", AccessToken: "token-sm", PhoneNumberID: "2222", AssistantID: "asst_sm"}
	return &config.Config{
		Tenants:       []config.TenantConfig{uk, smmart},
		DefaultTenant: &uk,
	}
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := utils.Zlog
	utils.Zlog = zap.New(core)
	t.Cleanup(func() { utils.Zlog = prev })
	return logs
}

func TestResolve_KnownNumber(t *testing.T) {
	r := NewResolver(testConfig())

	got := r.Resolve("+44 7510 698847")
	assert.Equal(t, "asst_sm", got.AssistantID)
	assert.Equal(t, "2222", got.PhoneNumberID)
}

func TestResolve_UnknownNumberFallsBackToDefaultWithWarning(t *testing.T) {
	logs := observeLogs(t)
	r := NewResolver(testConfig())

	for _, number := range []string{"15550001111", "", "+1 (555) 000-2222"} {
		got := r.Resolve(number)
		assert.Equal(t, "asst_uk", got.AssistantID, "number %q", number)
	}

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0].Message, "using default")
}

func TestResolveMetadata_PhoneNumberIDMatch(t *testing.T) {
	logs := observeLogs(t)
	r := NewResolver(testConfig())

	got := r.ResolveMetadata("15550001111", "2222")
	assert.Equal(t, "smmart", got.Name)
	assert.Empty(t, logs.FilterLevelExact(zapcore.WarnLevel).All())

	got = r.ResolveMetadata("15550001111", "unknown")
	assert.Equal(t, "infobot", got.Name)
}

func TestReload_ReplacesTable(t *testing.T) {
	r := NewResolver(testConfig())
	assert.Equal(t, []string{"447464177761", "447510698847"}, r.BusinessNumbers())

	next := config.TenantConfig{BusinessNumber: "15550001111", AccessToken: "t", PhoneNumberID: "3333", AssistantID: "asst_us"}
	r.Reload(&config.Config{Tenants: []config.TenantConfig{next}, DefaultTenant: &next})

	assert.Equal(t, []string{"15550001111"}, r.BusinessNumbers())
	assert.Equal(t, "asst_us", r.Resolve("447464177761").AssistantID)
	assert.Len(t, r.Tenants(), 1)
}

func TestDebugInfo_MasksTokens(t *testing.T) {
	logs := observeLogs(t)
	cfg := testConfig()
	cfg.Tenants[0].AccessToken = "EAABsecretsecretsecret1234"
	r := NewResolver(cfg)

	r.DebugInfo()

	for _, entry := range logs.FilterMessage("Configured tenant").All() {
		token := entry.ContextMap()["access_token"].(string)
		assert.NotContains(t, token, "secretsecret")
	}
}
