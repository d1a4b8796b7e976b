package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// TenantConfig holds everything needed to answer on behalf of one business
// phone number.
type TenantConfig struct {
	BusinessNumber string `yaml:"business_number"`
	Name           string `yaml:"name"`
	AccessToken    string `yaml:"access_token"`
	PhoneNumberID  string `yaml:"phone_number_id"`
	AssistantID    string `yaml:"assistant_id"`
}

func (t TenantConfig) Validate() error {
	label := t.BusinessNumber
	if label == "" {
		label = "default"
	}
	switch {
	case t.AccessToken == "":
		return fmt.Errorf("%w: access token for tenant %s", ErrMissingField, label)
	case t.PhoneNumberID == "":
		return fmt.Errorf("%w: phone number id for tenant %s", ErrMissingField, label)
	case t.AssistantID == "":
		return fmt.Errorf("%w: assistant id for tenant %s", ErrMissingField, label)
	}
	return nil
}

// MaskedToken returns the access token with everything but its ends hidden.
func (t TenantConfig) MaskedToken() string {
	if len(t.AccessToken) <= 8 {
		return strings.Repeat("*", len(t.AccessToken))
	}
	return t.AccessToken[:4] + "..." + t.AccessToken[len(t.AccessToken)-4:]
}

// tenantsFile is the YAML layout of TENANTS_FILE.
type tenantsFile struct {
	DefaultBusinessNumber string         `yaml:"default_business_number"`
	Tenants               []TenantConfig `yaml:"tenants"`
}

const (
	envAccessTokenPrefix   = "WHATSAPP_ACCESS_TOKEN_"
	envPhoneNumberIDPrefix = "WHATSAPP_PHONE_NUMBER_ID_"
	envAssistantIDPrefix   = "OPENAI_ASSISTANT_ID_"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// NormalizeNumber strips everything but digits, so "+44 7464 177761" and
// "447464177761" name the same tenant.
func NormalizeNumber(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func loadTenants(path string, environ []string) ([]TenantConfig, *TenantConfig, error) {
	env := lo.SliceToMap(environ, func(kv string) (string, string) {
		k, v, _ := strings.Cut(kv, "=")
		return k, v
	})

	table := make(map[string]*TenantConfig)
	var defaultNumber string

	if path != "" {
		file, err := readTenantsFile(path, env)
		if err != nil {
			return nil, nil, err
		}
		for i := range file.Tenants {
			t := file.Tenants[i]
			t.BusinessNumber = NormalizeNumber(t.BusinessNumber)
			if t.BusinessNumber == "" {
				return nil, nil, fmt.Errorf("tenant %d in %s has no business_number", i, path)
			}
			table[t.BusinessNumber] = &t
		}
		defaultNumber = NormalizeNumber(file.DefaultBusinessNumber)
	}

	mergeEnvTenants(table, env)

	tenants := make([]TenantConfig, 0, len(table))
	for _, t := range table {
		tenants = append(tenants, *t)
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].BusinessNumber < tenants[j].BusinessNumber
	})

	def, err := pickDefault(tenants, defaultNumber, env)
	if err != nil {
		return nil, nil, err
	}
	return tenants, def, nil
}

func readTenantsFile(path string, env map[string]string) (*tenantsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tenants file: %w", err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return env[envVarPattern.FindStringSubmatch(match)[1]]
	})

	var file tenantsFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("parsing tenants file: %w", err)
	}
	return &file, nil
}

// mergeEnvTenants applies WHATSAPP_ACCESS_TOKEN_<num>, WHATSAPP_PHONE_NUMBER_ID_<num>
// and OPENAI_ASSISTANT_ID_<num> on top of the file table. Non-empty env values win.
func mergeEnvTenants(table map[string]*TenantConfig, env map[string]string) {
	setters := map[string]func(*TenantConfig, string){
		envAccessTokenPrefix:   func(t *TenantConfig, v string) { t.AccessToken = v },
		envPhoneNumberIDPrefix: func(t *TenantConfig, v string) { t.PhoneNumberID = v },
		envAssistantIDPrefix:   func(t *TenantConfig, v string) { t.AssistantID = v },
	}

	for key, value := range env {
		if value == "" {
			continue
		}
		for prefix, set := range setters {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			number := NormalizeNumber(strings.TrimPrefix(key, prefix))
			if number == "" {
				continue
			}
			t, ok := table[number]
			if !ok {
				t = &TenantConfig{BusinessNumber: number}
				table[number] = t
			}
			set(t, value)
		}
	}
}

func pickDefault(tenants []TenantConfig, defaultNumber string, env map[string]string) (*TenantConfig, error) {
	if defaultNumber != "" {
		t, ok := lo.Find(tenants, func(t TenantConfig) bool { return t.BusinessNumber == defaultNumber })
		if !ok {
			return nil, fmt.Errorf("%w: default_business_number %s is not a configured tenant", ErrNoDefaultTenant, defaultNumber)
		}
		return &t, nil
	}

	generic := TenantConfig{
		BusinessNumber: NormalizeNumber(env["WHATSAPP_BUSINESS_NUMBER"]),
		AccessToken:    lo.CoalesceOrEmpty(env["WHATSAPP_ACCESS_TOKEN"], env["ACCESS_TOKEN"]),
		PhoneNumberID:  lo.CoalesceOrEmpty(env["WHATSAPP_PHONE_NUMBER_ID"], env["PHONE_NUMBER_ID"]),
		AssistantID:    env["OPENAI_ASSISTANT_ID"],
	}
	if generic.AccessToken != "" || generic.PhoneNumberID != "" || generic.AssistantID != "" {
		return &generic, nil
	}

	if len(tenants) == 1 {
		t := tenants[0]
		return &t, nil
	}
	return nil, nil
}
