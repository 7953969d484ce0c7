package model

import "strings"

// NormalizeName lowercases a display name and strips spaces, producing the
// form used in bucket and folder names and stored in Account.Name.
func NormalizeName(display string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(display)), " ", "")
}
