package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"go-auth-server/internal/model"
	"go-auth-server/pkg/apierror"
)

type ClientRepository struct {
	db DBTX
}

func NewClientRepository(db DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) error {
	var salt, hash *string
	if c.Secret != nil {
		salt, hash = &c.Secret.Salt, &c.Secret.Hash
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO clients (id, app_name, description, profile, secret_salt, secret_hash, sealed_secret, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.AppName, c.Description, string(c.Profile), salt, hash, c.SealedSecret, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.AlreadyExists("client")
		}
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (r *ClientRepository) FindByID(ctx context.Context, id string) (*model.Client, error) {
	var (
		c       model.Client
		profile string
		salt    *string
		hash    *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, app_name, description, profile, secret_salt, secret_hash, sealed_secret, created_at
		 FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.AppName, &c.Description, &profile, &salt, &hash, &c.SealedSecret, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierror.NotFound("client")
	}
	if err != nil {
		return nil, fmt.Errorf("find client by id: %w", err)
	}

	c.Profile = model.ClientProfile(profile)
	if salt != nil && hash != nil {
		c.Secret = &model.SecretCredential{Salt: *salt, Hash: *hash}
	}
	return &c, nil
}

func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierror.NotFound("client")
	}
	return nil
}
