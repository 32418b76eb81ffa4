package render

import (
	"regexp"
	"strings"
	"unicode"
)

var titleFixes = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`Ssd`), "SSD"},
	{regexp.MustCompile(`Id(\s|$)`), "ID$1"},
	{regexp.MustCompile(`(^|[^-])Ct([01\s$])`), "${1}CT$2"},
	{regexp.MustCompile(`-Ct([01\s$])`), "-ct$1"},
	{regexp.MustCompile(`iscsi|Iscsi`), "iSCSI"},
	{regexp.MustCompile(`Fc`), "FC"},
	{regexp.MustCompile(`Ntp`), "NTP"},
	{regexp.MustCompile(`Ip`), "IP"},
	{regexp.MustCompile(`Gc`), "GC"},
	{regexp.MustCompile(`Sas`), "SAS"},
	{regexp.MustCompile(`Pct$`), "PCT"},
	{regexp.MustCompile(`Mce `), "MCE "},
	{regexp.MustCompile(`Sel `), "SEL "},
}

// MakeTitle turns a snake_case name into a display title:
// "ssd_mapped" becomes "SSD Mapped".
func MakeTitle(name string) string {
	name = strings.ReplaceAll(name, "_", " ")

	var b strings.Builder
	prevLetter := false
	for _, r := range name {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}

	title := b.String()
	for _, fix := range titleFixes {
		// Matches consume their neighbours, so adjacent tokens such as
		// "Ct Ct" need another pass.
		for {
			next := fix.pattern.ReplaceAllString(title, fix.repl)
			if next == title {
				break
			}
			title = next
		}
	}
	return title
}
