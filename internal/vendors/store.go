package vendors

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"sfex/internal/constants"
	"sfex/internal/rules"
	"sfex/pkg/errors"
)

// Store holds every onboarded vendor profile with its rule set compiled
// up front, so a bad profile is rejected at startup instead of failing
// on the first file.
type Store struct {
	profiles map[string]Profile
	ruleSets map[string]*rules.RuleSet
	order    []string
}

// LoadStore reads the vendor profile file and compiles each vendor's
// validation rules.
func LoadStore(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read vendor profiles from %s: %w", path, err)
	}

	var profiles []Profile
	if err := v.UnmarshalKey("vendors", &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vendor profiles: %w", err)
	}

	return NewStore(profiles)
}

// NewStore builds a store from already-decoded profiles. Duplicate
// vendor ids and invalid rule configurations are load-time errors.
func NewStore(profiles []Profile) (*Store, error) {
	store := &Store{
		profiles: make(map[string]Profile, len(profiles)),
		ruleSets: make(map[string]*rules.RuleSet, len(profiles)),
		order:    make([]string, 0, len(profiles)),
	}

	for _, profile := range profiles {
		if profile.ID == "" {
			return nil, fmt.Errorf("vendor profile %q has no id", profile.Name)
		}
		if _, exists := store.profiles[profile.ID]; exists {
			return nil, fmt.Errorf("duplicate vendor id %q", profile.ID)
		}
		if profile.File.Format == "" {
			profile.File.Format = constants.FormatCSV
		}

		ruleSet, err := rules.CompileRules(profile.Rules)
		if err != nil {
			return nil, fmt.Errorf("vendor %s: %w", profile.ID, err)
		}

		store.profiles[profile.ID] = profile
		store.ruleSets[profile.ID] = ruleSet
		store.order = append(store.order, profile.ID)
	}

	return store, nil
}

// Get returns the profile for a vendor id.
func (s *Store) Get(vendorID string) (Profile, error) {
	profile, ok := s.profiles[vendorID]
	if !ok {
		return Profile{}, errors.ErrVendorNotFound.WithDetail("vendor_id", vendorID)
	}
	return profile, nil
}

// All returns every profile in file order.
func (s *Store) All() []Profile {
	out := make([]Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id])
	}
	return out
}

// RuleSet returns the compiled rule set for a vendor id.
func (s *Store) RuleSet(vendorID string) (*rules.RuleSet, error) {
	ruleSet, ok := s.ruleSets[vendorID]
	if !ok {
		return nil, errors.ErrVendorNotFound.WithDetail("vendor_id", vendorID)
	}
	return ruleSet, nil
}

// RuleConfigs returns the raw rule configuration for a vendor id, as
// declared in the profile file.
func (s *Store) RuleConfigs(vendorID string) ([]rules.Config, error) {
	profile, ok := s.profiles[vendorID]
	if !ok {
		return nil, errors.ErrVendorNotFound.WithDetail("vendor_id", vendorID)
	}
	return profile.Rules, nil
}

// MinPollInterval is the shortest poll interval across pollable
// vendors; the ingestion worker uses it as its wake-up cadence.
func (s *Store) MinPollInterval() time.Duration {
	min := 0
	for _, profile := range s.profiles {
		if !profile.PollEnabled() {
			continue
		}
		interval := profile.PollIntervalSeconds()
		if min == 0 || interval < min {
			min = interval
		}
	}
	if min == 0 {
		min = constants.DefaultPollIntervalSeconds
	}
	return time.Duration(min) * time.Second
}

func (s *Store) Len() int {
	return len(s.profiles)
}
