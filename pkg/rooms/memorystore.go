package rooms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

func NewInMemoryStore(params *RoomParams, logger *logrus.Logger) RoomStore {
	slots := make([]*slotState, len(params.Slots))
	for i := range params.Slots {
		slots[i] = &slotState{
			config:  params.Slots[i],
			checked: map[int64]bool{},
		}
	}
	return &inMemoryStore{
		params: params,
		slots:  slots,
		logger: logger,
	}
}

type inMemoryStore struct {
	mu     sync.Mutex
	params *RoomParams
	slots  []*slotState
	logger *logrus.Logger
}

type slotState struct {
	config  SlotConfig
	checked map[int64]bool
	// granted is append-only, the index of an item in this log is the
	// absolute index clients use for at-most-once delivery.
	granted []GrantedItem
}

func (s *inMemoryStore) Join(slotName string, game string, password string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.params.Password != "" && password != s.params.Password {
		return 0, ErrInvalidPassword
	}

	for i, slot := range s.slots {
		if slot.config.Name == slotName {
			if slot.config.Game != game {
				return 0, ErrInvalidGame
			}
			// Slot numbers are 1-based, slot 0 is the server.
			return i + 1, nil
		}
	}

	return 0, ErrInvalidSlot
}

func (s *inMemoryStore) Check(slot int, locations []int64) (int, []GrantedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.slotState(slot)
	if err != nil {
		return 0, nil, err
	}

	start := len(state.granted)
	granted := []GrantedItem{}
	for _, location := range locations {
		if state.checked[location] {
			continue
		}
		state.checked[location] = true

		item, grants := s.itemFor(state, location)
		if !grants {
			continue
		}
		grantedItem := GrantedItem{
			Item:     item,
			Location: location,
			Player:   slot,
		}
		state.granted = append(state.granted, grantedItem)
		granted = append(granted, grantedItem)
	}

	if len(granted) > 0 {
		s.logger.Debug("rooms: slot ", slot, " granted ", len(granted), " items from index ", start)
	}
	return start, granted, nil
}

func (s *inMemoryStore) itemFor(state *slotState, location int64) (int64, bool) {
	if state.config.Items == nil {
		return location + s.params.ItemIDOffset, true
	}
	item, exists := state.config.Items[location]
	return item, exists
}

func (s *inMemoryStore) ItemsFrom(slot int, index int) ([]GrantedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.slotState(slot)
	if err != nil {
		return nil, err
	}
	if index < 0 || index > len(state.granted) {
		return nil, fmt.Errorf("index %d is out of range for slot %d", index, slot)
	}

	items := make([]GrantedItem, len(state.granted)-index)
	copy(items, state.granted[index:])
	return items, nil
}

func (s *inMemoryStore) CheckedLocations(slot int) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.slotState(slot)
	if err != nil {
		return nil
	}

	locations := make([]int64, 0, len(state.checked))
	for location := range state.checked {
		locations = append(locations, location)
	}
	sort.Slice(locations, func(i, j int) bool {
		return locations[i] < locations[j]
	})
	return locations
}

func (s *inMemoryStore) MissingLocations(slot int) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.slotState(slot)
	if err != nil {
		return nil
	}

	locations := []int64{}
	for location := range state.config.Items {
		if !state.checked[location] {
			locations = append(locations, location)
		}
	}
	sort.Slice(locations, func(i, j int) bool {
		return locations[i] < locations[j]
	})
	return locations
}

func (s *inMemoryStore) slotState(slot int) (*slotState, error) {
	if slot < 1 || slot > len(s.slots) {
		return nil, fmt.Errorf("no slot with number %d", slot)
	}
	return s.slots[slot-1], nil
}
