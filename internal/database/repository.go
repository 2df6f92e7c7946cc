package database

import (
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	user    *models.UserModel
	avatar  *models.AvatarModel
	corpus  *models.CorpusModel
	queue   *models.QueueModel
	group   *models.GroupModel
	trait   *models.TraitModel
	session *models.SessionModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		user:    models.NewUser(db, logger),
		avatar:  models.NewAvatar(db, logger),
		corpus:  models.NewCorpus(db, logger),
		queue:   models.NewQueue(db, logger),
		group:   models.NewGroup(db, logger),
		trait:   models.NewTrait(db, logger),
		session: models.NewSession(db, logger),
	}
}

// User returns the user model repository.
func (r *Repository) User() *models.UserModel {
	return r.user
}

// Avatar returns the avatar model repository.
func (r *Repository) Avatar() *models.AvatarModel {
	return r.avatar
}

// Corpus returns the corpus model repository.
func (r *Repository) Corpus() *models.CorpusModel {
	return r.corpus
}

// Queue returns the queue model repository.
func (r *Repository) Queue() *models.QueueModel {
	return r.queue
}

// Group returns the group model repository.
func (r *Repository) Group() *models.GroupModel {
	return r.group
}

// Trait returns the trait model repository.
func (r *Repository) Trait() *models.TraitModel {
	return r.trait
}

// Session returns the session model repository.
func (r *Repository) Session() *models.SessionModel {
	return r.session
}
