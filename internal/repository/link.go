package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"repolink/internal/db"
	"repolink/internal/model"
)

type LinkRepository struct{}

func NewLinkRepository() *LinkRepository {
	return &LinkRepository{}
}

// LoadBaseline returns the baseline saved for link, or nil when none was
// saved or the saved one belongs to a different remote or branch.
func (r *LinkRepository) LoadBaseline(ctx context.Context, link *model.Link) (*model.Baseline, error) {
	var rec model.LinkRecord
	err := db.DB.WithContext(ctx).
		Where("local_path = ?", link.LocalPath).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load link: %w", err)
	}

	if rec.RemoteURL != link.RemoteURL || rec.Branch != link.Branch || rec.Baseline == "" {
		return nil, nil
	}

	var baseline model.Baseline
	if err := json.Unmarshal([]byte(rec.Baseline), &baseline); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}

	return &baseline, nil
}

func (r *LinkRepository) SaveBaseline(ctx context.Context, link *model.Link) error {
	rec := model.LinkRecord{
		LocalPath:     link.LocalPath,
		RemoteURL:     link.RemoteURL,
		Branch:        link.Branch,
		CredentialRef: link.CredentialRef,
	}

	if link.Baseline != nil {
		b, err := json.Marshal(link.Baseline)
		if err != nil {
			return fmt.Errorf("failed to encode baseline: %w", err)
		}
		rec.Baseline = string(b)
		rec.ReconciledAt = new(link.Baseline.ReconciledAt)
	}

	var existing model.LinkRecord
	err := db.DB.WithContext(ctx).
		Where("local_path = ?", link.LocalPath).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.DB.WithContext(ctx).Create(&rec).Error
	}
	if err != nil {
		return fmt.Errorf("failed to load link: %w", err)
	}

	return db.DB.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"remote_url":     rec.RemoteURL,
		"branch":         rec.Branch,
		"credential_ref": rec.CredentialRef,
		"baseline":       rec.Baseline,
		"reconciled_at":  rec.ReconciledAt,
	}).Error
}

func (r *LinkRepository) Delete(ctx context.Context, localPath string) error {
	return db.DB.WithContext(ctx).
		Unscoped().
		Where("local_path = ?", localPath).
		Delete(&model.LinkRecord{}).Error
}
