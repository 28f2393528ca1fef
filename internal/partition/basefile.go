package partition

import (
	"encoding/json"
	"fmt"
	"os"
)

// baseSplitFile is the on-disk shape of an exported split plan: one entry
// per split holding the test-side IDs. Train sides are always derived from
// the cohort, so they are not stored.
type baseSplitFile struct {
	TestIDs [][]string `json:"test_ids"`
}

// LoadBaseTestIDs reads the test memberships of an earlier experiment for
// remapping onto another cohort.
func LoadBaseTestIDs(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading base split file: %w", err)
	}
	var file baseSplitFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing base split file: %w", err)
	}
	if len(file.TestIDs) == 0 {
		return nil, fmt.Errorf("base split file %s holds no splits", path)
	}
	return file.TestIDs, nil
}

// SaveBaseTestIDs exports the test memberships of generated splits so a
// later experiment on a related cohort can remap them.
func SaveBaseTestIDs(path string, splits []Split) error {
	file := baseSplitFile{TestIDs: make([][]string, len(splits))}
	for i, s := range splits {
		file.TestIDs[i] = s.TestIDs
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling split plan: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing split plan: %w", err)
	}
	return nil
}
