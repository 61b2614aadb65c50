package parse

import (
	"encoding/xml"
	"os"

	"go.capitolfeed.build/go/sklog"
)

// rollcallDoc mirrors the subset of the publisher's rollcall-vote schema
// this parser extracts: vote identity, date, aggregate result, and an
// optional per-member breakdown.
type rollcallDoc struct {
	XMLName  xml.Name `xml:"rollcall-vote"`
	Congress string   `xml:"congress"`
	Chamber  string   `xml:"chamber"`
	Vote     struct {
		VoteID string `xml:"vote-id"`
		Date   string `xml:"vote-date"`
		Result string `xml:"vote-result"`
	} `xml:"vote-metadata"`
	Members struct {
		Items []struct {
			Bioguide string `xml:"name-id"`
			Position string `xml:"vote"`
		} `xml:"recorded-vote"`
	} `xml:"vote-data"`
}

// ParseRollcall reads one rollcall XML file and returns zero or one Vote
// record, including per-member rows when the member-breakdown element is
// present. Malformed input yields zero records and a warning.
func ParseRollcall(path string) ([]Vote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		sklog.Warningf("parse: could not read rollcall file %s: %s", path, err)
		return nil, nil
	}

	var doc rollcallDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		sklog.Warningf("parse: malformed rollcall XML at %s: %s", path, err)
		return nil, nil
	}

	if doc.Vote.VoteID == "" {
		sklog.Warningf("parse: rollcall file %s has no vote id, skipping", path)
		return nil, nil
	}

	chamber := doc.Chamber
	if chamber == "" {
		chamber = "house"
	}

	vote := Vote{
		SourceFile: path,
		Congress:   atoiOrZero(doc.Congress),
		Chamber:    chamber,
		VoteID:     doc.Vote.VoteID,
		VoteDate:   parseLenientDate(doc.Vote.Date),
		Result:     nilIfEmpty(doc.Vote.Result),
		Extra:      map[string]string{},
	}

	for _, m := range doc.Members.Items {
		if m.Bioguide == "" || m.Position == "" {
			continue
		}
		vote.Members = append(vote.Members, RollcallMemberVote{
			Bioguide: m.Bioguide,
			Position: m.Position,
		})
	}

	return []Vote{vote}, nil
}
