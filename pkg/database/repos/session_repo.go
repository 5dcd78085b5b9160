package repos

import (
	"github.com/tauraamui/dragonreel/pkg/database/dbconn"
	"github.com/tauraamui/dragonreel/pkg/database/models"
	"github.com/tauraamui/xerror"
)

type SessionRepository struct {
	DB dbconn.GormWrapper
}

func (r *SessionRepository) Create(session *models.PlaybackSession) error {
	return r.DB.Create(session).Error()
}

func (r *SessionRepository) FindByUUID(uuid string) (models.PlaybackSession, error) {
	session := models.PlaybackSession{}
	if err := r.DB.Where("uuid = ?", uuid).First(&session).Error(); err != nil {
		return session, xerror.Errorf("session of uuid %s not found", uuid)
	}

	return session, nil
}

// LatestByTitle returns up to limit sessions of the named sequence, newest
// first.
func (r *SessionRepository) LatestByTitle(title string, limit int) ([]models.PlaybackSession, error) {
	sessions := []models.PlaybackSession{}
	if err := r.DB.Where("title = ?", title).Order("created_at desc").Limit(limit).Find(&sessions).Error(); err != nil {
		return nil, xerror.Errorf("unable to list sessions of %s: %w", title, err)
	}

	return sessions, nil
}
