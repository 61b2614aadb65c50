package parse

import (
	"encoding/json"
	"os"

	"go.capitolfeed.build/go/sklog"
)

// legislatorEntry mirrors the canonical legislator reference JSON's field
// shapes (bioguide_id, first/last name, party, state).
type legislatorEntry struct {
	ID struct {
		Bioguide string `json:"bioguide_id"`
	} `json:"id"`
	Name struct {
		First string `json:"first_name"`
		Last  string `json:"last_name"`
	} `json:"name"`
	Terms []struct {
		Party string `json:"party"`
		State string `json:"state"`
	} `json:"terms"`
}

// ParseLegislators reads the canonical legislator reference JSON and
// returns one record per entry, using the most recent term for current
// party and home state. Malformed input yields zero records and a
// warning.
func ParseLegislators(path string) ([]Legislator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		sklog.Warningf("parse: could not read legislator file %s: %s", path, err)
		return nil, nil
	}

	var entries []legislatorEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		sklog.Warningf("parse: malformed legislator JSON at %s: %s", path, err)
		return nil, nil
	}

	out := make([]Legislator, 0, len(entries))
	for _, e := range entries {
		if e.ID.Bioguide == "" {
			sklog.Warningf("parse: legislator entry in %s has no bioguide id, skipping", path)
			continue
		}
		name := e.Name.First + " " + e.Name.Last
		l := Legislator{
			SourceFile: path,
			Bioguide:   e.ID.Bioguide,
			Name:       name,
			Extra:      map[string]string{},
		}
		if n := len(e.Terms); n > 0 {
			latest := e.Terms[n-1]
			l.CurrentParty = nilIfEmpty(latest.Party)
			l.State = nilIfEmpty(latest.State)
		}
		out = append(out, l)
	}
	return out, nil
}
