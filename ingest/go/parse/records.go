// Package parse extracts normalized records from downloaded bill-status,
// rollcall, and legislator files. Every parser is conservative: a
// malformed document yields zero records and a warning, never an error.
package parse

import "time"

// Bill is the natural key (Congress, Chamber, BillNumber).
type Bill struct {
	SourceFile     string
	Congress       int
	Chamber        string
	BillNumber     string
	Title          *string
	SponsorName    *string
	IntroducedDate *time.Time
	Sponsors       []string
	Actions        []BillAction
	Texts          []BillText
	Extra          map[string]string
}

// BillAction is one entry in a bill's action history.
type BillAction struct {
	Date *time.Time
	Text string
}

// BillText is one published format of a bill's text.
type BillText struct {
	Format string
	URL    string
}

// Vote is the natural key (Congress, Chamber, VoteID).
type Vote struct {
	SourceFile string
	Congress   int
	Chamber    string
	VoteID     string
	VoteDate   *time.Time
	Result     *string
	Members    []RollcallMemberVote
	Extra      map[string]string
}

// RollcallMemberVote is one member's recorded position on a vote.
type RollcallMemberVote struct {
	Bioguide string
	Position string
}

// Legislator is keyed by its 7-character Bioguide id.
type Legislator struct {
	SourceFile    string
	Bioguide      string
	Name          string
	CurrentParty  *string
	State         *string
	Extra         map[string]string
}

// parseLenientDate tries the ISO-8601 forms the publishers actually use;
// anything else is left nil rather than treated as an error, per the
// parser's "conservative" contract.
func parseLenientDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
