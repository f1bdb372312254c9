package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/models"
)

type recordKey struct {
	missionID uint64
	hunter    string
}

// MemoryStore holds ledger records in process memory.
// The single RWMutex keeps reads consistent across the related maps.
type MemoryStore struct {
	mu          sync.RWMutex
	missions    map[uint64]models.Mission
	submissions map[recordKey]models.Submission
	stakes      map[recordKey]models.Stake
	settings    map[string]models.LedgerSetting
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions:    make(map[uint64]models.Mission),
		submissions: make(map[recordKey]models.Submission),
		stakes:      make(map[recordKey]models.Stake),
		settings:    make(map[string]models.LedgerSetting),
	}
}

// Checkpoint copies every map and returns a function that puts the copies back
func (s *MemoryStore) Checkpoint() func() {
	s.mu.RLock()
	missions := make(map[uint64]models.Mission, len(s.missions))
	for k, v := range s.missions {
		missions[k] = v
	}
	submissions := make(map[recordKey]models.Submission, len(s.submissions))
	for k, v := range s.submissions {
		submissions[k] = v
	}
	stakes := make(map[recordKey]models.Stake, len(s.stakes))
	for k, v := range s.stakes {
		stakes[k] = v
	}
	settings := make(map[string]models.LedgerSetting, len(s.settings))
	for k, v := range s.settings {
		settings[k] = v
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.missions = missions
		s.submissions = submissions
		s.stakes = stakes
		s.settings = settings
	}
}

// NextMissionID increments the mission counter setting
func (s *MemoryStore) NextMissionID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	if setting, ok := s.settings[models.SettingMissionCounter]; ok {
		n, err := strconv.ParseUint(setting.ConfigValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt mission counter %q: %w", setting.ConfigValue, err)
		}
		current = n
	}
	next := current + 1
	now := time.Now()
	setting := s.settings[models.SettingMissionCounter]
	if setting.CreatedAt.IsZero() {
		setting.CreatedAt = now
	}
	setting.ConfigKey = models.SettingMissionCounter
	setting.ConfigValue = strconv.FormatUint(next, 10)
	setting.UpdatedBy = "system"
	setting.UpdatedAt = now
	s.settings[models.SettingMissionCounter] = setting
	return next, nil
}

// GetMission retrieves a mission by ID
func (s *MemoryStore) GetMission(_ context.Context, id uint64) (*models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMission(m), nil
}

// SaveMission inserts or replaces a mission
func (s *MemoryStore) SaveMission(_ context.Context, mission *models.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[mission.ID] = *cloneMission(*mission)
	return nil
}

// ListMissions returns missions ordered by ID
func (s *MemoryStore) ListMissions(_ context.Context, filter MissionFilter) ([]*models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	missions := make([]*models.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		if filter.Owner != "" && m.Owner != filter.Owner {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		missions = append(missions, cloneMission(m))
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].ID < missions[j].ID })
	return missions, nil
}

// GetSubmission retrieves a submission by (mission, hunter)
func (s *MemoryStore) GetSubmission(_ context.Context, missionID uint64, hunter string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[recordKey{missionID, hunter}]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// SaveSubmission inserts or replaces a submission
func (s *MemoryStore) SaveSubmission(_ context.Context, submission *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := *submission
	if submission.PaidAt != nil {
		paidAt := *submission.PaidAt
		sub.PaidAt = &paidAt
	}
	s.submissions[recordKey{submission.MissionID, submission.Hunter}] = sub
	return nil
}

// DeleteSubmission removes a submission; removing an absent key is a no-op
func (s *MemoryStore) DeleteSubmission(_ context.Context, missionID uint64, hunter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, recordKey{missionID, hunter})
	return nil
}

// ListSubmissions returns a mission's submissions ordered by creation then hunter
func (s *MemoryStore) ListSubmissions(_ context.Context, missionID uint64) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var subs []*models.Submission
	for k, v := range s.submissions {
		if k.missionID != missionID {
			continue
		}
		sub := v
		subs = append(subs, &sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].Hunter < subs[j].Hunter
	})
	return subs, nil
}

// GetStake retrieves the stake escrow record for (mission, hunter)
func (s *MemoryStore) GetStake(_ context.Context, missionID uint64, hunter string) (*models.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stake, ok := s.stakes[recordKey{missionID, hunter}]
	if !ok {
		return nil, ErrNotFound
	}
	return &stake, nil
}

// SaveStake inserts or replaces a stake
func (s *MemoryStore) SaveStake(_ context.Context, stake *models.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stakes[recordKey{stake.MissionID, stake.Hunter}] = *stake
	return nil
}

// DeleteStake removes a stake record
func (s *MemoryStore) DeleteStake(_ context.Context, missionID uint64, hunter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stakes, recordKey{missionID, hunter})
	return nil
}

// ListStakes returns every live stake ordered by (mission, hunter)
func (s *MemoryStore) ListStakes(_ context.Context) ([]*models.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stakes := make([]*models.Stake, 0, len(s.stakes))
	for _, v := range s.stakes {
		stake := v
		stakes = append(stakes, &stake)
	}
	sort.Slice(stakes, func(i, j int) bool {
		if stakes[i].MissionID != stakes[j].MissionID {
			return stakes[i].MissionID < stakes[j].MissionID
		}
		return stakes[i].Hunter < stakes[j].Hunter
	})
	return stakes, nil
}

// GetSetting returns a setting value or ErrNotFound
func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return setting.ConfigValue, nil
}

// PutSetting overwrites a setting
func (s *MemoryStore) PutSetting(_ context.Context, key, value, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	setting, ok := s.settings[key]
	if !ok {
		setting = models.LedgerSetting{ConfigKey: key, CreatedAt: now}
	}
	setting.ConfigValue = value
	setting.UpdatedBy = updatedBy
	setting.UpdatedAt = now
	s.settings[key] = setting
	return nil
}

func cloneMission(m models.Mission) *models.Mission {
	c := m
	if m.MinAssetToken != nil {
		token := *m.MinAssetToken
		c.MinAssetToken = &token
	}
	if m.CancelledAt != nil {
		at := *m.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

// MemoryTransactor serializes invocations against a MemoryStore.
// Token movements are rolled back too when the gateway implements interfaces.Checkpointer.
type MemoryTransactor struct {
	mu     sync.Mutex
	store  *MemoryStore
	tokens interfaces.TokenGateway
}

// NewMemoryTransactor creates a transactor over store and tokens
func NewMemoryTransactor(store *MemoryStore, tokens interfaces.TokenGateway) *MemoryTransactor {
	return &MemoryTransactor{store: store, tokens: tokens}
}

// InTransaction runs fn; on error or panic the store and gateway are restored
func (t *MemoryTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	restoreStore := t.store.Checkpoint()
	restoreTokens := func() {}
	if cp, ok := t.tokens.(interfaces.Checkpointer); ok {
		restoreTokens = cp.Checkpoint()
	}

	committed := false
	defer func() {
		if !committed {
			restoreTokens()
			restoreStore()
		}
	}()

	if err := fn(ctx, Session{Store: t.store, Tokens: t.tokens}); err != nil {
		return err
	}
	committed = true
	return nil
}
