package migration

import "strings"

// MySQL lacks CREATE INDEX IF NOT EXISTS; existence is checked by the caller.
func mysqlIndexStatement(stmt string) string {
	return strings.Replace(stmt, " IF NOT EXISTS", "", 1)
}

func indexName(stmt string) string {
	fields := strings.Fields(stmt)
	for i, f := range fields {
		if f == "EXISTS" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func indexTable(stmt string) string {
	fields := strings.Fields(stmt)
	for i, f := range fields {
		if f == "ON" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
