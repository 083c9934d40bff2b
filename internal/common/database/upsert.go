package database

import (
	"database/sql"
	"fmt"
	"strings"
)

func Insert(db *sql.DB, table string, fields []string, values []interface{}) (sql.Result, error) {
	insertSql := createInsertQuery(table, fields, values)
	return db.Exec(insertSql, values...)
}

func Upsert(db *sql.DB, table string, key string, fields []string, values []interface{}) (sql.Result, error) {
	return UpsertCombinedKey(db, table, []string{key}, fields, values)
}

func UpsertCombinedKey(db *sql.DB, table string, key []string, fields []string, values []interface{}) (sql.Result, error) {
	insertSql := createInsertQuery(table, append(append([]string{}, key...), fields...), values)
	insertSql += " ON CONFLICT (" + strings.Join(key, ",") + ") DO UPDATE SET "

	for i, f := range fields {
		if i != 0 {
			insertSql += ","
		}
		insertSql += f + " = EXCLUDED." + f
	}

	return db.Exec(insertSql, values...)
}

// InsertIgnoringConflicts is for tables whose columns are all part of the
// key, where there is nothing to update on conflict.
func InsertIgnoringConflicts(db *sql.DB, table string, fields []string, values []interface{}) (sql.Result, error) {
	insertSql := createInsertQuery(table, fields, values)
	insertSql += " ON CONFLICT DO NOTHING"
	return db.Exec(insertSql, values...)
}

func createInsertQuery(table string, fields []string, values []interface{}) string {
	insertSql := "INSERT INTO " + table + "(" + strings.Join(fields, ",") + ") VALUES "
	for i := 0; i < len(values); i += len(fields) {
		if i != 0 {
			insertSql += ","
		}
		insertSql += "("
		for k := range fields {
			if k != 0 {
				insertSql += ","
			}
			insertSql += fmt.Sprintf("$%d", i+k+1)
		}
		insertSql += ")"
	}
	return insertSql
}
