// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"strings"
	"time"
)

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// now is the clock used for created_at/updated_at.
var now = func() time.Time { return time.Now().UTC() }
