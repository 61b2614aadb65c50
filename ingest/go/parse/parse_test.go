package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.capitolfeed.build/go/testutils"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestParseBillStatusHappyPath(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	path := writeFile(t, dir, "bill.xml", `
		<billStatus><bill>
			<congress>117</congress>
			<type>HR</type>
			<billNumber>1234</billNumber>
			<title>An Act To Do Things</title>
			<introducedDate>2021-05-04</introducedDate>
			<sponsors><item><fullName>Rep. Example</fullName></item></sponsors>
			<actions><item><actionDate>2021-05-05</actionDate><text>Referred to committee</text></item></actions>
		</bill></billStatus>
	`)

	bills, err := ParseBillStatus(path)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	b := bills[0]
	require.Equal(t, 117, b.Congress)
	require.Equal(t, "hr", b.Chamber)
	require.Equal(t, "1234", b.BillNumber)
	require.Equal(t, "An Act To Do Things", *b.Title)
	require.NotNil(t, b.IntroducedDate)
	require.Equal(t, "Rep. Example", *b.SponsorName)
	require.Len(t, b.Actions, 1)
}

func TestParseBillStatusMalformedYieldsNoRecords(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "bad.xml", "<billStatus><bill not closed")

	bills, err := ParseBillStatus(path)
	require.NoError(t, err)
	require.Empty(t, bills)
}

func TestParseBillStatusMissingNumberSkipped(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "noop.xml", `<billStatus><bill><title>x</title></bill></billStatus>`)

	bills, err := ParseBillStatus(path)
	require.NoError(t, err)
	require.Empty(t, bills)
}

func TestParseRollcallHappyPath(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "vote.xml", `
		<rollcall-vote>
			<congress>117</congress>
			<chamber>house</chamber>
			<vote-metadata>
				<vote-id>117</vote-id>
				<vote-date>2021-06-01</vote-date>
				<vote-result>Passed</vote-result>
			</vote-metadata>
			<vote-data>
				<recorded-vote><name-id>A000001</name-id><vote>Yea</vote></recorded-vote>
				<recorded-vote><name-id>B000002</name-id><vote>Nay</vote></recorded-vote>
			</vote-data>
		</rollcall-vote>
	`)

	votes, err := ParseRollcall(path)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	v := votes[0]
	require.Equal(t, "117", v.VoteID)
	require.Equal(t, "Passed", *v.Result)
	require.Len(t, v.Members, 2)
	require.Equal(t, "Yea", v.Members[0].Position)
}

func TestParseRollcallMissingVoteIDSkipped(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "novote.xml", `<rollcall-vote><congress>117</congress></rollcall-vote>`)

	votes, err := ParseRollcall(path)
	require.NoError(t, err)
	require.Empty(t, votes)
}

func TestParseLegislatorsHappyPath(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "legislators.json", `[
		{
			"id": {"bioguide_id": "A000001"},
			"name": {"first_name": "Jane", "last_name": "Doe"},
			"terms": [
				{"party": "Democrat", "state": "CA"},
				{"party": "Democrat", "state": "CA"}
			]
		}
	]`)

	legs, err := ParseLegislators(path)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	require.Equal(t, "A000001", legs[0].Bioguide)
	require.Equal(t, "Jane Doe", legs[0].Name)
	require.Equal(t, "Democrat", *legs[0].CurrentParty)
	require.Equal(t, "CA", *legs[0].State)
}

func TestParseLegislatorsSkipsMissingBioguide(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "bad.json", `[{"name": {"first_name": "No", "last_name": "Id"}}]`)

	legs, err := ParseLegislators(path)
	require.NoError(t, err)
	require.Empty(t, legs)
}

func TestParseLegislatorsMalformedYieldsNoRecords(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := writeFile(t, dir, "bad.json", `not json at all`)

	legs, err := ParseLegislators(path)
	require.NoError(t, err)
	require.Empty(t, legs)
}
