// Package garden manages the planted-tree progression slots on the client
// side: five fixed slots, each holding a tree at level 0..2, persisted as
// JSON in the KV store. Planting is paid through the wallet; an
// InsufficientFunds rejection leaves both stores untouched.
package garden

import (
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/storage"
	"github.com/greenworld/greenworld/internal/wallet"
)

const (
	treesKey = "my_trees_v2"

	MaxLevel = 2
)

// AllSlots is the fixed set of plantable slots.
var AllSlots = []string{"d1", "d2", "d3", "d4", "d5"}

type Config struct {
	Storage storage.Store
	Wallet  *wallet.Service

	Now func() time.Time
}

type Service struct {
	kv     storage.Store
	wallet *wallet.Service
	now    func() time.Time
}

func NewService(c Config) *Service {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Service{
		kv:     c.Storage,
		wallet: c.Wallet,
		now:    c.Now,
	}
}

type storedTree struct {
	SlotID    string    `json:"slotId"`
	Level     int       `json:"level"`
	PlantedAt time.Time `json:"plantedAt"`
}

// Trees returns all planted trees. Unknown slots and out-of-range levels in
// the persisted payload are dropped or clamped rather than failing the read.
func (s *Service) Trees() []domain.Tree {
	return s.read()
}

func (s *Service) Tree(slotID string) (domain.Tree, bool) {
	for _, t := range s.read() {
		if t.SlotID == slotID {
			return t, true
		}
	}
	return domain.Tree{}, false
}

// Plant buys a tree into an empty slot at level 0, debiting price from the
// wallet first. Fails with AlreadyExists when the slot is occupied and
// InsufficientFunds when the balance does not cover the price; neither
// failure mutates anything.
func (s *Service) Plant(slotID string, price int64) (domain.Tree, error) {
	if !slices.Contains(AllSlots, slotID) {
		return domain.Tree{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown slot %q", slotID))
	}

	trees := s.read()
	for _, t := range trees {
		if t.SlotID == slotID {
			return domain.Tree{}, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("slot %s is already occupied", slotID))
		}
	}

	if _, err := s.wallet.Debit(price); err != nil {
		return domain.Tree{}, err
	}

	tree := domain.Tree{
		SlotID:    slotID,
		Level:     0,
		PlantedAt: s.now(),
	}
	s.write(append(trees, tree))

	return tree, nil
}

// Upgrade raises a planted tree one level. Fails with NotFound when the
// slot is empty and InvalidArgument at max level.
func (s *Service) Upgrade(slotID string) (domain.Tree, error) {
	trees := s.read()
	for i, t := range trees {
		if t.SlotID != slotID {
			continue
		}

		if t.Level >= MaxLevel {
			return domain.Tree{}, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("slot %s is already at max level", slotID))
		}

		trees[i].Level++
		s.write(trees)
		return trees[i], nil
	}

	return domain.Tree{}, errors.New(errors.CodeNotFound,
		errors.WithMessagef("slot %s is empty", slotID))
}

// Reset clears all planted trees.
func (s *Service) Reset() {
	s.write(nil)
}

func (s *Service) read() []domain.Tree {
	raw, ok := s.kv.Get(treesKey)
	if !ok {
		return nil
	}

	var stored []storedTree
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		slog.Warn("garden: malformed trees payload, starting empty", "error", err)
		return nil
	}

	trees := make([]domain.Tree, 0, len(stored))
	for _, t := range stored {
		if !slices.Contains(AllSlots, t.SlotID) {
			continue
		}
		lvl := t.Level
		if lvl < 0 {
			lvl = 0
		}
		if lvl > MaxLevel {
			lvl = MaxLevel
		}
		trees = append(trees, domain.Tree{
			SlotID:    t.SlotID,
			Level:     lvl,
			PlantedAt: t.PlantedAt,
		})
	}

	return trees
}

func (s *Service) write(trees []domain.Tree) {
	stored := make([]storedTree, 0, len(trees))
	for _, t := range trees {
		stored = append(stored, storedTree{
			SlotID:    t.SlotID,
			Level:     t.Level,
			PlantedAt: t.PlantedAt,
		})
	}

	b, err := json.Marshal(stored)
	if err != nil {
		slog.Warn("garden: marshal trees failed", "error", err)
		return
	}
	if err := s.kv.Set(treesKey, string(b)); err != nil {
		slog.Warn("garden: persist trees failed", "error", err)
	}
}
