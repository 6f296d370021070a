package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

const policyColumns = `id, min_length, max_length, require_alpha, require_lower, require_upper,
		        require_digit, require_special, allow_whitespace, allow_unicode,
		        allow_dictionary_words, blacklist, is_active, created_at`

type PolicyRepository struct {
	db DBTX
}

func NewPolicyRepository(db DBTX) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Create stores the policy inactive; use Activate to make it the enforced one.
func (r *PolicyRepository) Create(ctx context.Context, p *model.PasswordPolicy) error {
	blacklist := p.Blacklist
	if blacklist == nil {
		blacklist = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO password_policies (id, min_length, max_length, require_alpha, require_lower, require_upper,
		                                require_digit, require_special, allow_whitespace, allow_unicode,
		                                allow_dictionary_words, blacklist, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13)`,
		p.ID, p.MinLength, p.MaxLength, p.RequireAlpha, p.RequireLower, p.RequireUpper,
		p.RequireDigit, p.RequireSpecial, p.AllowWhitespace, p.AllowUnicode,
		p.AllowDictionaryWords, blacklist, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.AlreadyExists("password policy")
		}
		return fmt.Errorf("create password policy: %w", err)
	}
	p.IsActive = false
	return nil
}

// FindActive returns model.ErrNoActivePolicy when no policy is active.
func (r *PolicyRepository) FindActive(ctx context.Context) (*model.PasswordPolicy, error) {
	p, err := scanPolicy(r.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM password_policies WHERE is_active LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNoActivePolicy
	}
	if err != nil {
		return nil, fmt.Errorf("find active password policy: %w", err)
	}
	return p, nil
}

func (r *PolicyRepository) FindByID(ctx context.Context, id string) (*model.PasswordPolicy, error) {
	p, err := scanPolicy(r.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM password_policies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierror.NotFound("password policy")
	}
	if err != nil {
		return nil, fmt.Errorf("find password policy: %w", err)
	}
	return p, nil
}

// Activate deactivates every other active policy and then activates id, in one transaction.
// The partial unique index on is_active rejects a concurrent second activation.
func (r *PolicyRepository) Activate(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE password_policies SET is_active = false WHERE is_active AND id <> $1`, id); err != nil {
		return fmt.Errorf("deactivate password policies: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE password_policies SET is_active = true WHERE id = $1`, id)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.AlreadyExists("active password policy")
		}
		return fmt.Errorf("activate password policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("password policy")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *PolicyRepository) List(ctx context.Context) ([]model.PasswordPolicy, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+policyColumns+` FROM password_policies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list password policies: %w", err)
	}
	defer rows.Close()

	policies := make([]model.PasswordPolicy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan password policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func scanPolicy(row pgx.Row) (*model.PasswordPolicy, error) {
	var p model.PasswordPolicy
	err := row.Scan(&p.ID, &p.MinLength, &p.MaxLength, &p.RequireAlpha, &p.RequireLower, &p.RequireUpper,
		&p.RequireDigit, &p.RequireSpecial, &p.AllowWhitespace, &p.AllowUnicode,
		&p.AllowDictionaryWords, &p.Blacklist, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
