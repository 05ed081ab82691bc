package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	"ID" TEXT NOT NULL PRIMARY KEY,
	"Image" TEXT,
	"Started" TEXT);
CREATE TABLE IF NOT EXISTS summaries (
	"RunID" TEXT NOT NULL,
	"Stage" TEXT NOT NULL,
	"Key" TEXT NOT NULL,
	"Value" INTEGER,
	PRIMARY KEY ("RunID", "Stage", "Key"));
CREATE TABLE IF NOT EXISTS verdicts (
	"RunID" TEXT NOT NULL,
	"Stage" TEXT NOT NULL,
	"Idx" INTEGER NOT NULL,
	"VulnID" TEXT,
	"Package" TEXT,
	"InstalledVersion" TEXT,
	"FixedVersion" TEXT,
	"ContainerInstalledVersion" TEXT,
	"ComponentExists" INTEGER,
	"VersionMatches" INTEGER,
	"NotFixedOrMitigated" INTEGER,
	"ScannerNotGuessing" INTEGER,
	PRIMARY KEY ("RunID", "Stage", "Idx"));`

// Store keeps the history of validation runs in a sqlite database.
type Store struct {
	DB *sql.DB
}

// OpenStore opens, creating if needed, the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history database: %w", err)
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveRun records the start of a run.
func (s *Store) SaveRun(runID, image string, started time.Time) error {
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO runs ("ID", "Image", "Started") VALUES (?, ?, ?)`,
		runID, image, started.UTC().Format(time.RFC3339))
	return err
}

// SaveStage records the summary and every finding of one stage document.
func (s *Store) SaveStage(runID, stage string, doc *Document) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for k, v := range doc.Summary {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO summaries ("RunID", "Stage", "Key", "Value") VALUES (?, ?, ?, ?)`,
			runID, stage, k, v); err != nil {
			return err
		}
	}

	query, err := tx.Prepare(`INSERT OR REPLACE INTO verdicts (
		"RunID", "Stage", "Idx", "VulnID", "Package", "InstalledVersion", "FixedVersion",
		"ContainerInstalledVersion", "ComponentExists", "VersionMatches", "NotFixedOrMitigated",
		"ScannerNotGuessing") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer query.Close()

	for i, f := range doc.Vulnerabilities {
		if _, err := query.Exec(runID, stage, i, f.VulnID, f.Package, f.InstalledVersion, f.FixedVersion,
			f.ContainerInstalledVersion, f.ComponentExists, f.VersionMatches, f.NotFixedOrMitigated,
			f.ScannerNotGuessing); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// StageSummary reads back the summary of one stage of a run.
func (s *Store) StageSummary(runID, stage string) (map[string]int, error) {
	rows, err := s.DB.Query(`SELECT "Key", "Value" FROM summaries WHERE "RunID" = ? AND "Stage" = ?`, runID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		summary[k] = v
	}
	return summary, rows.Err()
}
