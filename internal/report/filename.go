package report

import (
	"regexp"
	"strings"
	"time"
)

var (
	schemePrefix = regexp.MustCompile(`^https?://`)
	unsafeChars  = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// ResultFileName derives a file name like "example_com_docs_20250101.json"
// from a start URL and a date.
func ResultFileName(startURL string, date time.Time) string {
	name := schemePrefix.ReplaceAllString(strings.TrimSpace(startURL), "")
	name = unsafeChars.ReplaceAllString(name, "_")
	return name + "_" + date.Format("20060102") + ".json"
}
