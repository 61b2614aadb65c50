package store

import (
	"context"

	"github.com/jackc/pgx/v4"

	"go.capitolfeed.build/go/skerr"
	"go.capitolfeed.build/ingest/go/parse"
)

// UpsertBill inserts or updates a bill by its natural key
// (congress, chamber, bill_number). Null incoming fields do not overwrite
// non-null stored values, via COALESCE against the existing row.
func (s *Store) UpsertBill(ctx context.Context, b parse.Bill) (int64, error) {
	var id int64
	err := withRetryTx(ctx, s.pool, func(tx pgx.Tx) error {
		const stmt = `
			INSERT INTO bills (congress, chamber, bill_number, title, sponsor_name, introduced_date, source_file)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (congress, chamber, bill_number) DO UPDATE SET
				title = COALESCE(EXCLUDED.title, bills.title),
				sponsor_name = COALESCE(EXCLUDED.sponsor_name, bills.sponsor_name),
				introduced_date = COALESCE(EXCLUDED.introduced_date, bills.introduced_date),
				source_file = COALESCE(EXCLUDED.source_file, bills.source_file)
			RETURNING id`
		row := tx.QueryRow(ctx, stmt, b.Congress, b.Chamber, b.BillNumber, b.Title, b.SponsorName, b.IntroducedDate, nonEmptyStr(b.SourceFile))
		if err := row.Scan(&id); err != nil {
			return err
		}

		// Re-parsing the same file upserts the same bill again; delete the
		// prior child rows first so they don't accumulate duplicates.
		if _, err := tx.Exec(ctx, `DELETE FROM sponsors WHERE bill_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bill_actions WHERE bill_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bill_texts WHERE bill_id = $1`, id); err != nil {
			return err
		}

		for _, sponsor := range b.Sponsors {
			if _, err := tx.Exec(ctx, `INSERT INTO sponsors (bill_id, name) VALUES ($1, $2)`, id, sponsor); err != nil {
				return err
			}
		}
		for _, a := range b.Actions {
			if _, err := tx.Exec(ctx, `INSERT INTO bill_actions (bill_id, action_date, text) VALUES ($1, $2, $3)`, id, a.Date, a.Text); err != nil {
				return err
			}
		}
		for _, txt := range b.Texts {
			if _, err := tx.Exec(ctx, `INSERT INTO bill_texts (bill_id, format, url) VALUES ($1, $2, $3)`, id, txt.Format, txt.URL); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, skerr.Wrapf(err, "upserting bill %d/%s/%s", b.Congress, b.Chamber, b.BillNumber)
	}
	return id, nil
}

// UpsertVote inserts or updates a vote by its natural key
// (congress, chamber, vote_id).
func (s *Store) UpsertVote(ctx context.Context, v parse.Vote) (int64, error) {
	var id int64
	err := withRetryTx(ctx, s.pool, func(tx pgx.Tx) error {
		const stmt = `
			INSERT INTO votes (congress, chamber, vote_id, vote_date, result, source_file)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (congress, chamber, vote_id) DO UPDATE SET
				vote_date = COALESCE(EXCLUDED.vote_date, votes.vote_date),
				result = COALESCE(EXCLUDED.result, votes.result),
				source_file = COALESCE(EXCLUDED.source_file, votes.source_file)
			RETURNING id`
		row := tx.QueryRow(ctx, stmt, v.Congress, v.Chamber, v.VoteID, v.VoteDate, v.Result, nonEmptyStr(v.SourceFile))
		if err := row.Scan(&id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM rollcall_votes WHERE vote_id = $1`, id); err != nil {
			return err
		}

		for _, m := range v.Members {
			const memberStmt = `INSERT INTO rollcall_votes (vote_id, bioguide, position) VALUES ($1, $2, $3)`
			if _, err := tx.Exec(ctx, memberStmt, id, m.Bioguide, m.Position); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, skerr.Wrapf(err, "upserting vote %d/%s/%s", v.Congress, v.Chamber, v.VoteID)
	}
	return id, nil
}

// UpsertLegislator inserts or updates a legislator by its natural key
// (bioguide).
func (s *Store) UpsertLegislator(ctx context.Context, l parse.Legislator) (int64, error) {
	var id int64
	err := withRetryTx(ctx, s.pool, func(tx pgx.Tx) error {
		const stmt = `
			INSERT INTO legislators (bioguide, name, current_party, state, source_file)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (bioguide) DO UPDATE SET
				name = COALESCE(NULLIF(EXCLUDED.name, ''), legislators.name),
				current_party = COALESCE(EXCLUDED.current_party, legislators.current_party),
				state = COALESCE(EXCLUDED.state, legislators.state),
				source_file = COALESCE(EXCLUDED.source_file, legislators.source_file)
			RETURNING id`
		row := tx.QueryRow(ctx, stmt, l.Bioguide, l.Name, l.CurrentParty, l.State, nonEmptyStr(l.SourceFile))
		return row.Scan(&id)
	})
	if err != nil {
		return 0, skerr.Wrapf(err, "upserting legislator %s", l.Bioguide)
	}
	return id, nil
}

func nonEmptyStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
