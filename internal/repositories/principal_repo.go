package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/BradenHooton/totpgate/internal/database"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PrincipalRepository stores principals in PostgreSQL
type PrincipalRepository struct {
	pool *pgxpool.Pool
}

func NewPrincipalRepository(db *database.DB) *PrincipalRepository {
	return &PrincipalRepository{pool: db.Pool}
}

const principalColumns = `id, identifier, password_hash, principal_type, email,
	first_name, last_name, address, fiscal_code, phone_number, company_name, vat_number,
	totp_secret, totp_enabled, totp_enabled_at, created_at, updated_at`

// rowScanner interface for scanning principal rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPrincipalRow handles nullable columns and populates a Principal
func scanPrincipalRow(scanner rowScanner) (*models.Principal, error) {
	var p models.Principal
	var email, firstName, lastName, address, fiscalCode, phone, company, vat *string

	err := scanner.Scan(
		&p.ID, &p.Identifier, &p.PasswordHash, &p.Type, &email,
		&firstName, &lastName, &address, &fiscalCode, &phone, &company, &vat,
		&p.TOTPSecret, &p.TOTPEnabled, &p.TOTPEnabledAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	p.Email = deref(email)
	p.FirstName = deref(firstName)
	p.LastName = deref(lastName)
	p.Address = deref(address)
	p.FiscalCode = deref(fiscalCode)
	p.PhoneNumber = deref(phone)
	p.CompanyName = deref(company)
	p.VATNumber = deref(vat)

	return &p, nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanPrincipalRow(r.pool.QueryRow(ctx, query, id))
}

func (r *PrincipalRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE identifier = $1`
	return scanPrincipalRow(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(identifier))))
}

// Create inserts a new principal. A taken identifier yields models.ErrConflict.
func (r *PrincipalRepository) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	p.ID = uuid.New().String()
	p.Identifier = strings.ToLower(strings.TrimSpace(p.Identifier))

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + principalColumns

	return scanPrincipalRow(r.pool.QueryRow(ctx, query,
		p.ID, p.Identifier, p.PasswordHash, p.Type, nullable(p.Email),
		nullable(p.FirstName), nullable(p.LastName), nullable(p.Address), nullable(p.FiscalCode),
		nullable(p.PhoneNumber), nullable(p.CompanyName), nullable(p.VATNumber),
		p.TOTPSecret, p.TOTPEnabled, p.TOTPEnabledAt, p.CreatedAt, p.UpdatedAt,
	))
}

// Put writes the mutable fields of an existing principal
func (r *PrincipalRepository) Put(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE principals SET
			password_hash = $1, email = $2, first_name = $3, last_name = $4, address = $5,
			fiscal_code = $6, phone_number = $7, company_name = $8, vat_number = $9,
			totp_secret = $10, totp_enabled = $11, totp_enabled_at = $12, updated_at = $13
		WHERE id = $14
		RETURNING ` + principalColumns

	return scanPrincipalRow(r.pool.QueryRow(ctx, query,
		p.PasswordHash, nullable(p.Email), nullable(p.FirstName), nullable(p.LastName), nullable(p.Address),
		nullable(p.FiscalCode), nullable(p.PhoneNumber), nullable(p.CompanyName), nullable(p.VATNumber),
		p.TOTPSecret, p.TOTPEnabled, p.TOTPEnabledAt, p.UpdatedAt, p.ID,
	))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
