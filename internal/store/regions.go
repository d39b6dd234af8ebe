package store

import (
	"errors"
	"fmt"
	"os"

	"markd/types"
)

// LoadRegions reads regions.json. A missing file yields an empty map.
func (s *Store) LoadRegions() (map[string]*types.Region, error) {
	regions := map[string]*types.Region{}
	err := readJSON(s.path(regionsFile), &regions)
	if errors.Is(err, os.ErrNotExist) {
		return regions, nil
	}
	if err != nil {
		return nil, err
	}
	return regions, nil
}

// SaveRegions writes the full region map.
func (s *Store) SaveRegions(regions map[string]*types.Region) error {
	return writeJSONAtomic(s.path(regionsFile), regions)
}

// AddRegion creates or updates a region, preserving its outlet list on
// update.
func (s *Store) AddRegion(id, name string, emails []string) error {
	regions, err := s.LoadRegions()
	if err != nil {
		return err
	}
	var tcList []string
	if existing, ok := regions[id]; ok {
		tcList = existing.TCList
	}
	if emails == nil {
		emails = []string{}
	}
	if tcList == nil {
		tcList = []string{}
	}
	regions[id] = &types.Region{Name: name, Emails: emails, TCList: tcList}
	return s.SaveRegions(regions)
}

// AddTCToRegion assigns an outlet to a region. Assignment is exclusive: the
// outlet is removed from every other region's list in the same write.
func (s *Store) AddTCToRegion(tc, regionID string) error {
	regions, err := s.LoadRegions()
	if err != nil {
		return err
	}
	region, ok := regions[regionID]
	if !ok {
		return fmt.Errorf("region not found: %s", regionID)
	}
	for id, r := range regions {
		if id == regionID {
			continue
		}
		r.TCList = removeString(r.TCList, tc)
	}
	if !containsString(region.TCList, tc) {
		region.TCList = append(region.TCList, tc)
	}
	return s.SaveRegions(regions)
}

// RemoveTCFromRegion detaches an outlet from a region. Removing an outlet
// that is not in the list is not an error.
func (s *Store) RemoveTCFromRegion(tc, regionID string) error {
	regions, err := s.LoadRegions()
	if err != nil {
		return err
	}
	region, ok := regions[regionID]
	if !ok {
		return fmt.Errorf("region not found: %s", regionID)
	}
	region.TCList = removeString(region.TCList, tc)
	return s.SaveRegions(regions)
}

// DeleteRegion removes a region entirely.
func (s *Store) DeleteRegion(regionID string) error {
	regions, err := s.LoadRegions()
	if err != nil {
		return err
	}
	if _, ok := regions[regionID]; !ok {
		return fmt.Errorf("region not found: %s", regionID)
	}
	delete(regions, regionID)
	return s.SaveRegions(regions)
}

// RegionForTC returns the id of the region holding the outlet, or
// types.UndefinedRegion when unmapped.
func (s *Store) RegionForTC(tc string) (string, error) {
	regions, err := s.LoadRegions()
	if err != nil {
		return "", err
	}
	return regionForTC(regions, tc), nil
}

func regionForTC(regions map[string]*types.Region, tc string) string {
	for id, r := range regions {
		if containsString(r.TCList, tc) {
			return id
		}
	}
	return types.UndefinedRegion
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
