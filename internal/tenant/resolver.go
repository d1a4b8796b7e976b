package tenant

import (
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/utils"
)

// Resolver maps business phone numbers to tenant credentials.
type Resolver struct {
	mu            sync.RWMutex
	byNumber      map[string]config.TenantConfig
	byPhoneNumber map[string]config.TenantConfig
	fallback      config.TenantConfig
}

// NewResolver builds a resolver from a validated config.
func NewResolver(cfg *config.Config) *Resolver {
	r := &Resolver{}
	r.Reload(cfg)
	return r
}

// Reload atomically replaces the tenant table.
func (r *Resolver) Reload(cfg *config.Config) {
	byNumber := make(map[string]config.TenantConfig, len(cfg.Tenants))
	byPhoneNumber := make(map[string]config.TenantConfig, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		byNumber[t.BusinessNumber] = t
		byPhoneNumber[t.PhoneNumberID] = t
	}

	var fallback config.TenantConfig
	if cfg.DefaultTenant != nil {
		fallback = *cfg.DefaultTenant
	}

	r.mu.Lock()
	r.byNumber = byNumber
	r.byPhoneNumber = byPhoneNumber
	r.fallback = fallback
	r.mu.Unlock()

	utils.Zlog.Info("Tenant table loaded",
		zap.Int("tenants", len(byNumber)),
		zap.String("default_business_number", fallback.BusinessNumber))
}

// Resolve returns the tenant for a business number, or the default tenant
// when the number is not configured.
func (r *Resolver) Resolve(businessNumber string) config.TenantConfig {
	number := config.NormalizeNumber(businessNumber)

	r.mu.RLock()
	t, ok := r.byNumber[number]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		return t
	}

	utils.Zlog.Warn("No tenant configured for business number, using default",
		zap.String("business_number", number),
		zap.Strings("configured", r.BusinessNumbers()),
		zap.String("default_business_number", fallback.BusinessNumber))
	return fallback
}

// ResolveMetadata resolves a tenant from webhook metadata. The display number
// is tried first, then the phone number id, then the default tenant.
func (r *Resolver) ResolveMetadata(displayPhoneNumber, phoneNumberID string) config.TenantConfig {
	number := config.NormalizeNumber(displayPhoneNumber)

	r.mu.RLock()
	t, ok := r.byNumber[number]
	if !ok && phoneNumberID != "" {
		t, ok = r.byPhoneNumber[phoneNumberID]
	}
	r.mu.RUnlock()

	if ok {
		return t
	}
	return r.Resolve(number)
}

// BusinessNumbers lists the configured business numbers in sorted order.
func (r *Resolver) BusinessNumbers() []string {
	r.mu.RLock()
	numbers := lo.Keys(r.byNumber)
	r.mu.RUnlock()

	sort.Strings(numbers)
	return numbers
}

// Tenants returns a sorted snapshot of the tenant table.
func (r *Resolver) Tenants() []config.TenantConfig {
	r.mu.RLock()
	tenants := lo.Values(r.byNumber)
	r.mu.RUnlock()

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].BusinessNumber < tenants[j].BusinessNumber
	})
	return tenants
}

// Default returns the tenant used for unknown numbers.
func (r *Resolver) Default() config.TenantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// DebugInfo logs the tenant table with access tokens masked.
func (r *Resolver) DebugInfo() {
	for _, t := range r.Tenants() {
		utils.Zlog.Debug("Configured tenant",
			zap.String("business_number", t.BusinessNumber),
			zap.String("name", t.Name),
			zap.String("phone_number_id", t.PhoneNumberID),
			zap.String("assistant_id", t.AssistantID),
			zap.String("access_token", t.MaskedToken()))
	}
	def := r.Default()
	utils.Zlog.Debug("Default tenant",
		zap.String("business_number", def.BusinessNumber),
		zap.String("phone_number_id", def.PhoneNumberID),
		zap.String("assistant_id", def.AssistantID),
		zap.String("access_token", def.MaskedToken()))
}
