package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/result"
)

// BackupTables lists the exported tables in foreign-key order. Sessions and
// link codes are short-lived and not part of a backup.
var BackupTables = []string{
	"avatars",
	"profiles",
	"oauth_identities",
	"missions",
	"mission_questions",
	"badges",
	"shop_items",
	"mystery_box_loot",
	"user_items",
	"user_avatars",
	"friends",
	"gifts",
	"feedback",
	"transactions",
	"mission_attempts",
}

// serialTables own a BIGSERIAL id whose sequence must follow restored rows.
var serialTables = []string{"mission_questions", "mystery_box_loot", "gifts", "feedback", "transactions", "mission_attempts"}

// ErrUnknownTable is returned when a restore names a table outside BackupTables.
var ErrUnknownTable = result.New(result.KindValidation, "unknown table in backup")

// BackupRepository exports and restores whole tables as JSON row arrays.
type BackupRepository struct {
	db db.DBTX
}

// NewBackupRepository creates a new BackupRepository instance.
func NewBackupRepository(conn db.DBTX) *BackupRepository {
	return &BackupRepository{db: conn}
}

// Export returns every backup table as a JSON array of rows.
func (r *BackupRepository) Export(ctx context.Context) (map[string]json.RawMessage, error) {
	data := make(map[string]json.RawMessage, len(BackupTables))
	for _, table := range BackupTables {
		// Table names come from BackupTables only.
		query := fmt.Sprintf(`SELECT COALESCE(json_agg(row_to_json(t)), '[]'::json) FROM %s t`, table)
		var rows []byte
		if err := r.db.QueryRow(ctx, query).Scan(&rows); err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", table, err)
		}
		data[table] = json.RawMessage(rows)
	}
	return data, nil
}

// Restore overwrites every table present in data. Run it inside a
// transaction; rows are deleted in reverse dependency order and inserted in
// dependency order.
func (r *BackupRepository) Restore(ctx context.Context, data map[string]json.RawMessage) error {
	known := make(map[string]bool, len(BackupTables))
	for _, table := range BackupTables {
		known[table] = true
	}
	for table := range data {
		if !known[table] {
			return fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
	}

	for i := len(BackupTables) - 1; i >= 0; i-- {
		table := BackupTables[i]
		if _, ok := data[table]; !ok {
			continue
		}
		if _, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, table := range BackupTables {
		rows, ok := data[table]
		if !ok {
			continue
		}
		query := fmt.Sprintf(`INSERT INTO %[1]s SELECT * FROM json_populate_recordset(NULL::%[1]s, $1::json)`, table)
		if _, err := r.db.Exec(ctx, query, string(rows)); err != nil {
			return fmt.Errorf("failed to restore %s: %w", table, err)
		}
	}

	for _, table := range serialTables {
		if _, ok := data[table]; !ok {
			continue
		}
		query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE(MAX(id), 0) + 1, false) FROM %[1]s`, table)
		if _, err := r.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to reset %s sequence: %w", table, err)
		}
	}
	return nil
}
