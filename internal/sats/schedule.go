package sats

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_schedule.yaml
var defaultSchedule []byte

// Entry sets the amount of every tier from EffectiveFrom until the next entry.
type Entry struct {
	EffectiveFrom time.Time
	Amounts       map[TierID]int64
}

// Schedule is an effective-dated amount table, sorted by EffectiveFrom.
type Schedule struct {
	entries []Entry
}

type yamlSchedule struct {
	Schedule []struct {
		EffectiveFrom string        `yaml:"effective_from"`
		Amounts       map[int]int64 `yaml:"amounts"`
	} `yaml:"schedule"`
}

// ParseSchedule decodes a YAML schedule.
func ParseSchedule(data []byte) (Schedule, error) {
	var ys yamlSchedule
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return Schedule{}, fmt.Errorf("parse schedule: %w", err)
	}
	if len(ys.Schedule) == 0 {
		return Schedule{}, fmt.Errorf("schedule has no entries")
	}

	entries := make([]Entry, 0, len(ys.Schedule))
	for _, raw := range ys.Schedule {
		from, err := time.Parse("2006-01-02", raw.EffectiveFrom)
		if err != nil {
			return Schedule{}, fmt.Errorf("entry effective_from %q: %w", raw.EffectiveFrom, err)
		}
		amounts := make(map[TierID]int64, len(raw.Amounts))
		for tier, amount := range raw.Amounts {
			if tier < int(Tier1) || tier > int(Tier5) {
				return Schedule{}, fmt.Errorf("entry %s: unknown tier %d", raw.EffectiveFrom, tier)
			}
			if amount < 0 {
				return Schedule{}, fmt.Errorf("entry %s: negative amount for tier %d", raw.EffectiveFrom, tier)
			}
			amounts[TierID(tier)] = amount
		}
		for id := Tier1; id <= Tier5; id++ {
			if _, ok := amounts[id]; !ok {
				return Schedule{}, fmt.Errorf("entry %s: missing amount for %s", raw.EffectiveFrom, id)
			}
		}
		entries = append(entries, Entry{EffectiveFrom: from, Amounts: amounts})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EffectiveFrom.Before(entries[j].EffectiveFrom)
	})
	for i := 1; i < len(entries); i++ {
		if entries[i].EffectiveFrom.Equal(entries[i-1].EffectiveFrom) {
			return Schedule{}, fmt.Errorf("duplicate effective_from %s", entries[i].EffectiveFrom.Format("2006-01-02"))
		}
	}
	return Schedule{entries: entries}, nil
}

// LoadSchedule reads a YAML schedule from path.
func LoadSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule file: %w", err)
	}
	return ParseSchedule(data)
}

// DefaultSchedule returns the embedded schedule.
func DefaultSchedule() Schedule {
	s, err := ParseSchedule(defaultSchedule)
	if err != nil {
		panic(fmt.Sprintf("sats: embedded schedule: %v", err))
	}
	return s
}

// Entry returns the entry in force on the given date: the latest one whose
// EffectiveFrom is not after it.
func (s Schedule) Entry(on time.Time) (Entry, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EffectiveFrom.After(on)
	})
	if i == 0 {
		return Entry{}, false
	}
	return s.entries[i-1], true
}

// Entries returns the schedule in effective-date order.
func (s Schedule) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
