package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/keyhub/pkg/models"
)

var riskProfiles = entity[models.RiskProfile]{
	table:   "risk_profile",
	columns: []string{"id", "user_id", "risk_score", "created_at", "updated_at"},
	scan: func(row pgx.Row) (*models.RiskProfile, error) {
		var p models.RiskProfile
		err := row.Scan(&p.ID, &p.UserID, &p.RiskScore, &p.CreatedAt, &p.UpdatedAt)
		return &p, err
	},
}

// RiskProfileStore implements RiskProfileRepository.
type RiskProfileStore struct {
	db DBTX
}

func NewRiskProfileStore(db DBTX) *RiskProfileStore {
	return &RiskProfileStore{db: db}
}

func (s *RiskProfileStore) GetByUserID(ctx context.Context, userID int64) (*models.RiskProfile, error) {
	return riskProfiles.one(ctx, s.db, "get risk profile", "WHERE user_id = $1", userID)
}

func (s *RiskProfileStore) Create(ctx context.Context, p *models.RiskProfile) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO risk_profile (user_id, risk_score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		p.UserID, p.RiskScore, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	return classify("create risk profile", err)
}
