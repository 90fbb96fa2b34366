package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	versionPattern = regexp.MustCompile(`(?:\bversion\s*)?\bv?\d+(?:\.\d+)+[a-z0-9\-+]*`)
	localePattern  = regexp.MustCompile(`^[a-z]{2,3}-[a-z]{2,4}$`)
	tokenSplit     = regexp.MustCompile(`[\s,;:/\\()\[\]{}|+]+`)
)

var architectureTokens = map[string]bool{
	"x86":     true,
	"x64":     true,
	"x86_64":  true,
	"amd64":   true,
	"arm":     true,
	"arm64":   true,
	"aarch64": true,
	"ia64":    true,
	"win32":   true,
	"win64":   true,
	"32bit":   true,
	"64bit":   true,
	"32-bit":  true,
	"64-bit":  true,
}

var bitnessPairs = map[string]bool{
	"32 bit": true,
	"64 bit": true,
}

var legalEntityTokens = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"llc":          true,
	"llp":          true,
	"lp":           true,
	"ltd":          true,
	"limited":      true,
	"gmbh":         true,
	"ag":           true,
	"kg":           true,
	"sa":           true,
	"sarl":         true,
	"srl":          true,
	"sro":          true,
	"spa":          true,
	"bv":           true,
	"nv":           true,
	"plc":          true,
	"pty":          true,
	"ab":           true,
	"oy":           true,
	"kk":           true,
}

// Name returns the comparison key for a package or installed-app name. It
// drops version numbers, architecture markers and locale tags, then keeps
// only letters and digits.
func Name(name string) string {
	s := versionPattern.ReplaceAllString(Fold(name), " ")
	for pair := range bitnessPairs {
		s = strings.ReplaceAll(s, pair, " ")
	}

	var kept []string
	for _, tok := range tokenSplit.Split(s, -1) {
		tok = strings.Trim(tok, ".")
		if tok == "" || architectureTokens[tok] || localePattern.MatchString(tok) {
			continue
		}
		for _, sub := range strings.Split(tok, "-") {
			if sub != "" && !architectureTokens[sub] {
				kept = append(kept, sub)
			}
		}
	}
	return lettersAndDigits(strings.Join(kept, ""))
}

// Publisher returns the comparison key for a publisher. Corporate entity
// suffixes are removed unless nothing else would remain.
func Publisher(publisher string) string {
	s := Fold(publisher)
	s = strings.NewReplacer(".", "", ",", " ").Replace(s)

	tokens := strings.Fields(s)
	var kept []string
	for _, tok := range tokens {
		if legalEntityTokens[lettersAndDigits(tok)] {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		kept = tokens
	}
	return lettersAndDigits(strings.Join(kept, ""))
}

func lettersAndDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
