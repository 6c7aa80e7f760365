package events

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Flush best-effort persists the ring's current snapshot to path as a
// self-describing YAML array. Failure is logged at HIGH priority and
// returned, but must never be allowed to block or crash the caller: the
// shutdown orchestrator treats the returned error as informational.
func (r *Ring) Flush(path string) error {
	snap := r.Snapshot()
	data, err := yaml.Marshal(snap)
	if err != nil {
		logrus.WithError(err).Error("cannot marshal event ring")
		return fmt.Errorf("cannot marshal event ring: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logrus.WithError(err).Error("cannot persist event ring")
		return fmt.Errorf("cannot persist event ring to %q: %w", path, err)
	}
	return nil
}

// Load reads a previously persisted event log, e.g. for operator inspection.
// A missing file is not an error; it returns an empty slice.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read event log %q: %w", path, err)
	}
	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("cannot parse event log %q: %w", path, err)
	}
	return records, nil
}
