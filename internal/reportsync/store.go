package reportsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/salesreport-sync/internal/config"
)

// ErrTenantNotFound is returned when no tenant is registered under an id.
var ErrTenantNotFound = errors.New("tenant not found")

// Store keeps tenant configurations in SQLite so activities can resolve
// credentials by tenant id without them entering workflow history.
type Store struct {
	db *sql.DB
}

// NewStore constructs a tenant registry.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			sp_api TEXT NOT NULL,
			netsuite TEXT NOT NULL,
			restlet_url TEXT NOT NULL,
			registered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply tenant schema: %w", err)
		}
	}
	return nil
}

// UpsertTenant registers a tenant or replaces its configuration.
func (s *Store) UpsertTenant(ctx context.Context, tenant config.Tenant) error {
	tenant.ID = config.NormalizeTenantID(tenant.ID)
	if err := tenant.Validate(); err != nil {
		return err
	}
	spJSON, err := json.Marshal(tenant.SPAPI)
	if err != nil {
		return fmt.Errorf("marshal sp-api credentials: %w", err)
	}
	nsJSON, err := json.Marshal(tenant.NetSuite)
	if err != nil {
		return fmt.Errorf("marshal netsuite credentials: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenants(id, sp_api, netsuite, restlet_url, registered_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET sp_api = excluded.sp_api,
			netsuite = excluded.netsuite,
			restlet_url = excluded.restlet_url,
			updated_at = excluded.updated_at`,
		tenant.ID, string(spJSON), string(nsJSON), tenant.RestletURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

// GetTenant loads a tenant's full configuration.
func (s *Store) GetTenant(ctx context.Context, id string) (config.Tenant, error) {
	var (
		tenant         config.Tenant
		spJSON, nsJSON string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sp_api, netsuite, restlet_url FROM tenants WHERE id = ?`, config.NormalizeTenantID(id))
	if err := row.Scan(&tenant.ID, &spJSON, &nsJSON, &tenant.RestletURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return config.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
		}
		return config.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	if err := json.Unmarshal([]byte(spJSON), &tenant.SPAPI); err != nil {
		return config.Tenant{}, fmt.Errorf("decode sp-api credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(nsJSON), &tenant.NetSuite); err != nil {
		return config.Tenant{}, fmt.Errorf("decode netsuite credentials: %w", err)
	}
	return tenant, nil
}

// ListTenants returns redacted summaries ordered by id.
func (s *Store) ListTenants(ctx context.Context) ([]TenantSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sp_api, netsuite, restlet_url, updated_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []TenantSummary
	for rows.Next() {
		var (
			summary        TenantSummary
			spJSON, nsJSON string
		)
		if err := rows.Scan(&summary.ID, &spJSON, &nsJSON, &summary.RestletURL, &summary.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		var sp struct {
			Region string `json:"region"`
		}
		var ns struct {
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal([]byte(spJSON), &sp); err != nil {
			return nil, fmt.Errorf("decode sp-api credentials: %w", err)
		}
		if err := json.Unmarshal([]byte(nsJSON), &ns); err != nil {
			return nil, fmt.Errorf("decode netsuite credentials: %w", err)
		}
		summary.Region = sp.Region
		summary.AccountID = ns.AccountID
		tenants = append(tenants, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter tenants: %w", err)
	}
	return tenants, nil
}

// DeleteTenant removes a tenant.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, config.NormalizeTenantID(id))
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return nil
}
