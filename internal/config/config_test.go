package config

import (
	"testing"

	goenv "github.com/Netflix/go-env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tenantVars(prefix string) goenv.EnvSet {
	return goenv.EnvSet{
		prefix + "SP_APP_CLIENT_ID":         "client-" + prefix,
		prefix + "SP_APP_CLIENT_SECRET":     "secret",
		prefix + "SP_REFRESH_TOKEN":         "Atzr|" + prefix,
		prefix + "AWS_ACCESS_KEY_ID":        "AKID",
		prefix + "AWS_SECRET_ACCESS_KEY":    "aws-secret",
		prefix + "AWS_SELLING_PARTNER_ROLE": "arn:aws:iam::1:role/sp",
		prefix + "NETSUITE_ACCOUNT_ID":      "1234567",
		prefix + "NETSUITE_CONSUMER_KEY":    "ck",
		prefix + "NETSUITE_CONSUMER_SECRET": "cs",
		prefix + "NETSUITE_ACCESS_TOKEN":    "tk",
		prefix + "NETSUITE_TOKEN_SECRET":    "ts",
		prefix + "NETSUITE_RESTLET_URL":     "https://1234567.restlets.api.netsuite.com/app/site/hosting/restlet.nl?script=1&deploy=1",
	}
}

func merge(sets ...goenv.EnvSet) goenv.EnvSet {
	out := goenv.EnvSet{}
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

func TestLoadTenantsPerPrefix(t *testing.T) {
	p := Process{
		Tenants: " US, eu-store ,",
		Extras:  merge(tenantVars("US_"), tenantVars("EU_STORE_")),
	}
	tenants, err := p.LoadTenants()
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	assert.Equal(t, "us", tenants[0].ID)
	assert.Equal(t, "client-US_", tenants[0].SPAPI.AppClientID)
	assert.Equal(t, "na", tenants[0].SPAPI.Region)
	assert.Equal(t, "arn:aws:iam::1:role/sp", tenants[0].SPAPI.AWSRoleARN)
	assert.Equal(t, "tk", tenants[0].NetSuite.TokenKey)

	assert.Equal(t, "eu-store", tenants[1].ID)
	assert.Equal(t, "client-EU_STORE_", tenants[1].SPAPI.AppClientID)
}

func TestTenantFromEnvMissingValue(t *testing.T) {
	vars := tenantVars("US_")
	delete(vars, "US_NETSUITE_TOKEN_SECRET")
	_, err := TenantFromEnv("us", vars)
	assert.ErrorContains(t, err, "tenant us")
}

func TestTenantFromEnvIgnoresOtherTenants(t *testing.T) {
	_, err := TenantFromEnv("us", tenantVars("EU_"))
	assert.Error(t, err)
}

func TestTenantIDs(t *testing.T) {
	assert.Empty(t, Process{}.TenantIDs())
	assert.Equal(t, []string{"a", "b"}, Process{Tenants: "A,,b"}.TenantIDs())
}
