package mysql

import "database/sql"

// nullString maps "" to NULL for nullable text columns
func nullString(s string) sql.NullString {
    if s == "" {
        return sql.NullString{}
    }
    return sql.NullString{String: s, Valid: true}
}
