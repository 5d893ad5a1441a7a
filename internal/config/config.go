package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goenv "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

// Process holds settings shared by every binary.
type Process struct {
	HTTPAddr          string        `env:"HTTP_ADDR,default=:8082"`
	DBPath            string        `env:"DB_PATH,default=tenants.db"`
	TemporalHostPort  string        `env:"TEMPORAL_HOSTPORT,default=localhost:7233"`
	TemporalNamespace string        `env:"TEMPORAL_NAMESPACE,default=default"`
	AutosyncInterval  time.Duration `env:"AUTOSYNC_INTERVAL,default=0s"`
	Tenants           string        `env:"TENANTS"`
	DefaultTenant     string        `env:"REPORT_TENANT"`

	Extras goenv.EnvSet
}

// TenantIDs splits TENANTS into normalised ids.
func (p Process) TenantIDs() []string {
	var ids []string
	for _, raw := range strings.Split(p.Tenants, ",") {
		if id := NormalizeTenantID(raw); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Tenant is everything one tenant's run needs.
type Tenant struct {
	ID         string               `json:"id"`
	SPAPI      spapi.Credentials    `json:"sp_api"`
	NetSuite   netsuite.Credentials `json:"netsuite"`
	RestletURL string               `json:"restlet_url"`
}

// Validate reports missing required settings.
func (t Tenant) Validate() error {
	if t.ID == "" {
		return errors.New("tenant id required")
	}
	if t.SPAPI.AppClientID == "" || t.SPAPI.AppClientSecret == "" || t.SPAPI.RefreshToken == "" {
		return fmt.Errorf("tenant %s: sp-api client id, secret and refresh token required", t.ID)
	}
	if err := t.NetSuite.Validate(); err != nil {
		return fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	if t.RestletURL == "" {
		return fmt.Errorf("tenant %s: netsuite restlet url required", t.ID)
	}
	return nil
}

// tenantEnv is the per-tenant variable set, read after stripping the
// "<TENANT>_" prefix.
type tenantEnv struct {
	AppClientID        string `env:"SP_APP_CLIENT_ID"`
	AppClientSecret    string `env:"SP_APP_CLIENT_SECRET"`
	RefreshToken       string `env:"SP_REFRESH_TOKEN"`
	Region             string `env:"SP_REGION,default=na"`
	Endpoint           string `env:"SP_ENDPOINT"`
	TokenURL           string `env:"SP_TOKEN_URL"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRoleARN         string `env:"AWS_SELLING_PARTNER_ROLE"`
	AccountID          string `env:"NETSUITE_ACCOUNT_ID"`
	ConsumerKey        string `env:"NETSUITE_CONSUMER_KEY"`
	ConsumerSecret     string `env:"NETSUITE_CONSUMER_SECRET"`
	TokenKey           string `env:"NETSUITE_ACCESS_TOKEN"`
	TokenSecret        string `env:"NETSUITE_TOKEN_SECRET"`
	RestletURL         string `env:"NETSUITE_RESTLET_URL"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Process, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Process{}, fmt.Errorf("load .env: %w", err)
	}
	var p Process
	es, err := goenv.UnmarshalFromEnviron(&p)
	if err != nil {
		return Process{}, fmt.Errorf("read environment: %w", err)
	}
	p.Extras = es
	return p, nil
}

// LoadTenants builds one Tenant per id in TENANTS from the environment.
func (p Process) LoadTenants() ([]Tenant, error) {
	env := p.Extras
	if env == nil {
		var err error
		if env, err = goenv.EnvironToEnvSet(os.Environ()); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}
	ids := p.TenantIDs()
	tenants := make([]Tenant, 0, len(ids))
	for _, id := range ids {
		tenant, err := TenantFromEnv(id, env)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

// TenantFromEnv reads the "<ID>_" prefixed variables of one tenant.
func TenantFromEnv(id string, env goenv.EnvSet) (Tenant, error) {
	id = NormalizeTenantID(id)
	prefix := strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_"
	scoped := goenv.EnvSet{}
	for k, v := range env {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			scoped[rest] = v
		}
	}
	var te tenantEnv
	if err := goenv.Unmarshal(scoped, &te); err != nil {
		return Tenant{}, fmt.Errorf("tenant %s: %w", id, err)
	}
	tenant := Tenant{
		ID: id,
		SPAPI: spapi.Credentials{
			AppClientID:        te.AppClientID,
			AppClientSecret:    te.AppClientSecret,
			RefreshToken:       te.RefreshToken,
			AWSAccessKeyID:     te.AWSAccessKeyID,
			AWSSecretAccessKey: te.AWSSecretAccessKey,
			AWSRoleARN:         te.AWSRoleARN,
			Region:             te.Region,
			Endpoint:           te.Endpoint,
			TokenURL:           te.TokenURL,
		},
		NetSuite: netsuite.Credentials{
			AccountID:      te.AccountID,
			ConsumerKey:    te.ConsumerKey,
			ConsumerSecret: te.ConsumerSecret,
			TokenKey:       te.TokenKey,
			TokenSecret:    te.TokenSecret,
		},
		RestletURL: te.RestletURL,
	}
	if err := tenant.Validate(); err != nil {
		return Tenant{}, err
	}
	return tenant, nil
}

// NormalizeTenantID lower-cases and trims a tenant id.
func NormalizeTenantID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
