package credentials

import (
	"os"
	"strings"
)

// ImportLegacyDeviceID reads a device id from the single-line deviceName
// file format described in spec.md §6, and persists it through the store if
// no device id is already stored. It is a one-time migration path; callers
// run it once at startup before generating a fresh device id.
func (s *Store) ImportLegacyDeviceID(path string) error {
	if _, err := s.GetDeviceID(); err == nil {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return nil
	}

	return s.SetDeviceID(id)
}
