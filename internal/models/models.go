package models

import (
	"time"
)

// MissionStatus mission lifecycle status
type MissionStatus string

const (
	MissionStatusOpen      MissionStatus = "open"      // accepting submissions
	MissionStatusPaused    MissionStatus = "paused"    // submissions and updates rejected, payouts allowed
	MissionStatusCancelled MissionStatus = "cancelled" // terminal, pool and pending stakes refunded
)

// SubmissionStatus submission resolution status
type SubmissionStatus string

const (
	SubmissionStatusPending SubmissionStatus = "pending"
	SubmissionStatusPaid    SubmissionStatus = "paid"
)

// Column widths; input validation keeps within them
const (
	PrincipalSize = 128 // owners, hunters, treasury, token ids
	TitleSize     = 200
	ContentIDSize = 256
)

// Mission sponsor-funded task with a capped number of reward slots
type Mission struct {
	ID                uint64        `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Owner             string        `json:"owner" gorm:"index;not null;size:128"`
	Title             string        `json:"title" gorm:"not null;size:200"`
	Description       string        `json:"description" gorm:"type:text"`
	RewardToken       string        `json:"reward_token" gorm:"index;not null;size:128"`
	RewardAmount      int64         `json:"reward_amount" gorm:"not null"`     // per-slot reward
	MaxParticipants   uint32        `json:"max_participants" gorm:"not null"`  // reward slots
	ParticipantsCount uint32        `json:"participants_count" gorm:"not null"` // paid out, not merely submitted
	Status            MissionStatus `json:"status" gorm:"index;not null;size:20"`
	MinAssetToken     *string       `json:"min_asset_token,omitempty" gorm:"size:128"` // optional eligibility gate
	MinAssetAmount    int64         `json:"min_asset_amount"`
	CancelledAt       *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// RemainingSlots reward slots not yet paid out
func (m *Mission) RemainingSlots() uint32 {
	if m.ParticipantsCount >= m.MaxParticipants {
		return 0
	}
	return m.MaxParticipants - m.ParticipantsCount
}

// IsGated reports whether submissions require a minimum asset balance
func (m *Mission) IsGated() bool {
	return m.MinAssetToken != nil && *m.MinAssetToken != ""
}

// Submission a hunter's work against a mission, keyed by (mission_id, hunter)
type Submission struct {
	MissionID   uint64           `json:"mission_id" gorm:"primaryKey;autoIncrement:false"`
	Hunter      string           `json:"hunter" gorm:"primaryKey;size:128"`
	ContentID   string           `json:"content_id" gorm:"not null;size:256"` // opaque content pointer (hash / CID)
	StakeToken  string           `json:"stake_token" gorm:"not null;size:128"`
	StakeAmount int64            `json:"stake_amount" gorm:"not null"`
	Status      SubmissionStatus `json:"status" gorm:"index;not null;size:20"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Stake escrowed deposit backing a submission
// Removed by payout (refund), slash (treasury) or cancel (refund).
type Stake struct {
	MissionID uint64    `json:"mission_id" gorm:"primaryKey;autoIncrement:false"`
	Hunter    string    `json:"hunter" gorm:"primaryKey;size:128"`
	Token     string    `json:"token" gorm:"index;not null;size:128"`
	Amount    int64     `json:"amount" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerSetting stores process-wide singletons (treasury, id counters)
type LedgerSetting struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	ConfigKey   string    `json:"config_key" gorm:"uniqueIndex;not null;size:50"`
	ConfigValue string    `json:"config_value" gorm:"not null;size:200"`
	Description string    `json:"description" gorm:"size:200"`
	UpdatedBy   string    `json:"updated_by" gorm:"size:128"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	SettingTreasury       = "treasury"
	SettingMissionCounter = "mission_counter"
)

// TokenBalance balance row for the in-database token ledger
type TokenBalance struct {
	Asset     string    `json:"asset" gorm:"primaryKey;size:128"`
	Account   string    `json:"account" gorm:"primaryKey;size:128"`
	Amount    int64     `json:"amount" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}
