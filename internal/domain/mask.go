package domain

import "strings"

// MaskDocument hides an identity document for log output, keeping only the
// last four characters.
func MaskDocument(document string) string {
	document = strings.TrimSpace(document)
	if len(document) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(document)-4) + document[len(document)-4:]
}
