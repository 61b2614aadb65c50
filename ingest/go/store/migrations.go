package store

import (
	"context"

	"go.capitolfeed.build/go/skerr"
	"go.capitolfeed.build/go/sklog"
)

// migration is one named, idempotent schema step. Names are zero-padded so
// slice order and lexicographic order agree.
type migration struct {
	name string
	upSQL string
}

var migrations = []migration{
	{
		name: "0001_schema_migrations",
		upSQL: `CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
	{
		name: "0002_bills",
		upSQL: `CREATE TABLE IF NOT EXISTS bills (
			id SERIAL PRIMARY KEY,
			congress INT NOT NULL,
			chamber TEXT NOT NULL,
			bill_number TEXT NOT NULL,
			title TEXT,
			sponsor_name TEXT,
			introduced_date TIMESTAMPTZ,
			source_file TEXT,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (congress, chamber, bill_number)
		)`,
	},
	{
		name: "0003_votes",
		upSQL: `CREATE TABLE IF NOT EXISTS votes (
			id SERIAL PRIMARY KEY,
			congress INT NOT NULL,
			chamber TEXT NOT NULL,
			vote_id TEXT NOT NULL,
			vote_date TIMESTAMPTZ,
			result TEXT,
			source_file TEXT,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (congress, chamber, vote_id)
		)`,
	},
	{
		name: "0004_legislators",
		upSQL: `CREATE TABLE IF NOT EXISTS legislators (
			id SERIAL PRIMARY KEY,
			bioguide TEXT NOT NULL,
			name TEXT NOT NULL,
			current_party TEXT,
			state TEXT,
			source_file TEXT,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (bioguide)
		)`,
	},
	{
		name: "0005_bill_supporting_tables",
		upSQL: `
			CREATE TABLE IF NOT EXISTS sponsors (
				id SERIAL PRIMARY KEY,
				bill_id INT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
				name TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS bill_actions (
				id SERIAL PRIMARY KEY,
				bill_id INT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
				action_date TIMESTAMPTZ,
				text TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS bill_texts (
				id SERIAL PRIMARY KEY,
				bill_id INT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
				format TEXT NOT NULL,
				url TEXT NOT NULL
			);
		`,
	},
	{
		name: "0006_rollcall_votes",
		upSQL: `CREATE TABLE IF NOT EXISTS rollcall_votes (
			id SERIAL PRIMARY KEY,
			vote_id INT NOT NULL REFERENCES votes(id) ON DELETE CASCADE,
			bioguide TEXT NOT NULL,
			position TEXT NOT NULL CHECK (position IN ('Yea', 'Nay', 'Present', 'Not Voting'))
		)`,
	},
}

// Migrate applies every migration not yet recorded in schema_migrations, in
// slice order. Every CREATE uses IF NOT EXISTS, so re-running an already
// applied migration is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrations[0].upSQL); err != nil {
		return skerr.Wrapf(err, "creating schema_migrations table")
	}

	for _, m := range migrations[1:] {
		var applied bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, m.name).Scan(&applied)
		if err != nil {
			return skerr.Wrapf(err, "checking migration %s", m.name)
		}
		if applied {
			continue
		}

		if _, err := s.pool.Exec(ctx, m.upSQL); err != nil {
			return skerr.Wrapf(err, "applying migration %s", m.name)
		}
		if _, err := s.pool.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.name); err != nil {
			return skerr.Wrapf(err, "recording migration %s", m.name)
		}
		sklog.Infof("store: applied migration %s", m.name)
	}
	return nil
}
