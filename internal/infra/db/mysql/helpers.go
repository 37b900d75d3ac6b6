package mysql

import (
	"errors"
	"strings"

	driver "github.com/go-sql-driver/mysql"
)

const errDupEntry = 1062

// isDuplicate reports a unique key violation (id or external_job_id).
func isDuplicate(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// dashIfEmpty returns "-" when the input is empty/whitespace
func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
