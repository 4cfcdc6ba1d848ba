package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParentLinkModel maps the profile service's parent to climber relation.
type ParentLinkModel struct {
	ParentID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClimberID uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (ParentLinkModel) TableName() string { return "parent_climber_links" }

// GormLinkRepository implements access.LinkFinder using GORM. Reads always go
// to the database.
type GormLinkRepository struct {
	db *gorm.DB
}

func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

// FindLink reports whether parentID may act for climberID.
func (r *GormLinkRepository) FindLink(ctx context.Context, parentID, climberID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ParentLinkModel{}).
		Where("parent_id = ? AND climber_id = ?", parentID, climberID).
		Count(&count).Error; err != nil {
		return false, storageError("find parent link", err)
	}
	return count > 0, nil
}

// Link records a parent to climber relation. Existing links are left as is.
func (r *GormLinkRepository) Link(ctx context.Context, parentID, climberID uuid.UUID) error {
	model := ParentLinkModel{ParentID: parentID, ClimberID: climberID, CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return storageError("create parent link", err)
	}
	return nil
}
