package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"habitbell/internal/reminder"
)

const schemaVersion = 1

type document struct {
	Version   int                         `json:"version"`
	UpdatedAt time.Time                   `json:"updated_at"`
	Entries   map[string][]reminder.Entry `json:"entries"`
}

func encode(m map[reminder.Type][]reminder.Entry, now time.Time) ([]byte, error) {
	doc := document{
		Version:   schemaVersion,
		UpdatedAt: now.UTC(),
		Entries:   make(map[string][]reminder.Entry, len(m)),
	}
	for t, es := range m {
		if len(es) == 0 {
			continue
		}
		doc.Entries[string(t)] = es
	}
	return json.Marshal(doc)
}

// decode parses a stored document. Slots of unknown or fire-and-forget types
// and entries without a handle are dropped and reported back by name.
func decode(b []byte) (map[reminder.Type][]reminder.Entry, []string, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, nil, err
	}
	if doc.Version != schemaVersion {
		return nil, nil, fmt.Errorf("registry: unsupported version %d", doc.Version)
	}

	keys := make([]string, 0, len(doc.Entries))
	for k := range doc.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[reminder.Type][]reminder.Entry{}
	var dropped []string
	for _, k := range keys {
		t, err := reminder.ParseType(k)
		if err != nil || !t.Scheduled() {
			dropped = append(dropped, k)
			continue
		}
		for _, e := range doc.Entries[k] {
			if e.Handle == "" {
				dropped = append(dropped, k+":<no handle>")
				continue
			}
			e.Type = t
			out[t] = append(out[t], e)
		}
	}
	return out, dropped, nil
}
