package model

import (
	"time"

	"gorm.io/gorm"
)

type LinkRecord struct {
	gorm.Model
	LocalPath     string `gorm:"not null;uniqueIndex"`
	RemoteURL     string `gorm:"not null"`
	Branch        string `gorm:"not null"`
	CredentialRef string
	Baseline      string
	ReconciledAt  *time.Time
}

type CycleRecord struct {
	gorm.Model
	LocalPath  string     `gorm:"not null;index"`
	Cycle      uint64     `gorm:"not null"`
	Result     Divergence `gorm:"not null"`
	Action     Action     `gorm:"not null"`
	Decision   Decision
	Applied    bool
	ErrMsg     string
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"not null"`
}
