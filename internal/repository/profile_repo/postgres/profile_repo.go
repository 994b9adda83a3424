package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout/internal/domain"
)

var ErrProfileNotFound = errors.New("profile not found")

type pgProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *pgProfileRepository {
	return &pgProfileRepository{db: db}
}

func (r *pgProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT id, full_name, phone, role, verification_status FROM profiles WHERE id = $1`
	p := &domain.Profile{}
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.FullName, &p.Phone, &p.Role, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	if p.VerificationStatus, err = domain.ParseVerificationStatus(status); err != nil {
		return nil, fmt.Errorf("profile %s: %w", id, err)
	}
	return p, nil
}
