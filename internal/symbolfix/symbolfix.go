// Package symbolfix repairs the partially-demangled legacy Rust symbol form
// emitted by profilers (sample, pmc, and others) that only demangle the
// coarse `_ZN...` envelope and leave the inner `$...$`-escaped punctuation
// and trailing hash in place.
package symbolfix

import "strings"

// rustHashLength is len("h") + 16 hex digits.
const rustHashLength = 17

var substitutions = []struct {
	pat, rep string
}{
	{"$SP$", "@"},
	{"$BP$", "*"},
	{"$RF$", "&"},
	{"$LT$", "<"},
	{"$GT$", ">"},
	{"$LP$", "("},
	{"$RP$", ")"},
	{"$C$", ","},
	{"$u7e$", "~"},
	{"$u20$", " "},
	{"$u27$", "'"},
	{"$u3d$", "="},
	{"$u5b$", "["},
	{"$u5d$", "]"},
	{"$u7b$", "{"},
	{"$u7d$", "}"},
	{"$u3b$", ";"},
	{"$u2b$", "+"},
	{"$u21$", "!"},
	{"$u22$", "\""},
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isRustHash(s string) bool {
	if len(s) == 0 || s[0] != 'h' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

// Fix reverses the substitutions applied by the legacy Rust mangling scheme.
// Symbols without the trailing `h<16hex>` pattern — including fully mangled
// `_ZN...` symbols — are returned unchanged.
func Fix(symbol string) string {
	if len(symbol) < rustHashLength || !isRustHash(symbol[len(symbol)-rustHashLength:]) {
		return symbol
	}

	rest := symbol[:len(symbol)-rustHashLength]

	if strings.HasSuffix(rest, "::") {
		rest = rest[:len(rest)-2]
	}
	if strings.HasPrefix(rest, "_$") {
		rest = rest[1:]
	}

	var out strings.Builder
	for len(rest) > 0 {
		switch {
		case rest[0] == '.':
			if len(rest) > 1 && rest[1] == '.' {
				out.WriteString("::")
				rest = rest[2:]
			} else {
				out.WriteByte('.')
				rest = rest[1:]
			}
		case rest[0] == '$':
			matched := false
			for _, sub := range substitutions {
				if strings.HasPrefix(rest, sub.pat) {
					out.WriteString(sub.rep)
					rest = rest[len(sub.pat):]
					matched = true
					break
				}
			}
			if !matched {
				out.WriteString(rest)
				rest = ""
			}
		default:
			idx := strings.IndexAny(rest, "$.")
			if idx < 0 {
				idx = len(rest)
			}
			out.WriteString(rest[:idx])
			rest = rest[idx:]
		}
	}
	return out.String()
}
