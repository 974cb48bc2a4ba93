package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/linemk/market-checkout/internal/domain/models"
	"golang.org/x/sync/errgroup"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileStorage разрешает пользователя провайдера идентификации в доменный профиль
type ProfileStorage interface {
	ResolveProfile(ctx context.Context, authID string) (*models.Profile, error)
}

type profileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) ProfileStorage {
	return &profileRepository{db: db}
}

// таблицы ролей в порядке приоритета
var roleTables = []struct {
	role  models.Role
	query string
}{
	{models.RoleUser, "SELECT id FROM users WHERE auth_id = $1"},
	{models.RoleVendor, "SELECT id FROM vendors WHERE auth_id = $1"},
	{models.RoleAdmin, "SELECT id FROM admins WHERE auth_id = $1"},
	{models.RoleLogistic, "SELECT id FROM logistics WHERE auth_id = $1"},
}

// ResolveProfile опрашивает таблицы ролей параллельно и выбирает первую найденную по приоритету
func (r *profileRepository) ResolveProfile(ctx context.Context, authID string) (*models.Profile, error) {
	ids := make([]*int64, len(roleTables))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range roleTables {
		i, t := i, t
		g.Go(func() error {
			var id int64
			err := r.db.QueryRowContext(gctx, t.query, authID).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			ids[i] = &id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		if id != nil {
			return &models.Profile{ID: *id, Role: roleTables[i].role}, nil
		}
	}
	return nil, ErrProfileNotFound
}
