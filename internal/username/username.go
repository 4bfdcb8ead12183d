// Package username maps upstream names with permissive formats onto
// UNIX-viable user and group names.
package username

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jshihstsci/uidgid/internal/types"
)

// UserPrefix is applied to squashed user names that do not start with a
// letter. Group names get a deployment-specific prefix instead, see
// GroupPrefix.
const UserPrefix = "u-"

var (
	separatorRe = regexp.MustCompile(`[\s_.]`)
	invalidRe   = regexp.MustCompile(`[^a-z0-9-]`)
	vowelRe     = regexp.MustCompile(`[aeiou]`)
)

// ToValidUsername squashes a unicode name with a weakly constrained
// character set and arbitrary length into at most 32 ASCII characters
// starting with a letter and consisting only of lowercase letters,
// digits, and hyphens, suitable for naming OS users or groups.
//
// If the squashed name begins with a digit or dash it is re-squashed
// with `prefix` prepended, which for users is UserPrefix and for groups
// is typically a deployment prefix such as "rmn-". Collisions with
// `existing` are resolved by MakeUnique.
func ToValidUsername(name string, existing map[string]bool, prefix string) (types.SystemName, error) {
	squashed := squash(name)

	if !startsWithLetter(squashed) {
		squashed = squash(prefix + squashed)
		if !startsWithLetter(squashed) {
			return "", fmt.Errorf("%w: prefix %q cannot repair name %q", types.ErrInvalid, prefix, name)
		}
	}

	for strings.Contains(squashed, "--") {
		squashed = strings.ReplaceAll(squashed, "--", "-")
	}
	squashed = strings.TrimRight(squashed, "-")
	if len(squashed) > types.MaxSystemNameLen {
		squashed = squashed[:types.MaxSystemNameLen]
	}

	unique := MakeUnique(squashed, existing, types.MaxSystemNameLen)

	if !types.IsValidSystemName(unique) {
		return "", fmt.Errorf("%w: generated name %q from %q is not a valid system name", types.ErrInvalid, unique, name)
	}
	if unique == prefix || unique+"-" == prefix {
		return "", fmt.Errorf("%w: generated name %q from %q is a degenerate form indicating other problems", types.ErrInvalid, unique, name)
	}
	return types.SystemName(unique), nil
}

// squash runs the deterministic part of the pipeline: transliterate to
// ASCII, drop any e-mail domain, lowercase, turn separators into
// hyphens, and remove everything outside [a-z0-9-].
func squash(name string) string {
	s := transliterate(name)
	s, _, _ = strings.Cut(s, "@")
	s = strings.ToLower(s)
	s = separatorRe.ReplaceAllString(s, "-")
	return invalidRe.ReplaceAllString(s, "")
}

func startsWithLetter(s string) bool {
	return s != "" && s[0] >= 'a' && s[0] <= 'z'
}

// MakeUnique returns a name derived from candidate that is absent from
// existing and no longer than maxLen. A decimal tail -1, -2, ... is
// appended until the name is free, re-truncating the base to leave room
// for the counter whenever the length limit is exceeded. Deterministic
// and always terminates: counters grow monotonically while the taken
// set is finite.
func MakeUnique(candidate string, existing map[string]bool, maxLen int) string {
	unique := candidate
	counter := 1
	tail := ""
	for existing[unique] || len(unique) > maxLen {
		if len(unique) > maxLen {
			// Reserve space for the hyphen and counter.
			cut := maxLen - len(strconv.Itoa(counter)) - 1
			if cut > len(candidate) {
				cut = len(candidate)
			}
			unique = candidate[:cut]
		}
		if tail != "" && strings.HasSuffix(unique, tail) {
			unique = unique[:len(unique)-len(tail)]
		}
		tail = "-" + strconv.Itoa(counter)
		unique += tail
		counter++
	}
	return unique
}

// GroupPrefix returns the prefix for group names, derived from the
// deployment name. Known deployments use a fixed short form; anything
// else falls back to the consonant-only form of the deployment name.
func GroupPrefix(deployment string) string {
	fixed := map[string]string{
		"roman":     "rmn",
		"tike":      "tk",
		"jwebbinar": "jwb",
		"jwst":      "jwst",
	}
	if p, ok := fixed[deployment]; ok {
		return p + "-"
	}
	if deployment == "" {
		return "g-"
	}
	return vowelRe.ReplaceAllString(strings.ToLower(deployment), "") + "-"
}

// stripMarks removes combining marks after canonical decomposition,
// turning e.g. "Jürgen" into "Jurgen".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// asciiFold covers letters that do not decompose into an ASCII base
// plus marks and would otherwise vanish entirely.
var asciiFold = map[rune]string{
	'æ': "ae", 'Æ': "AE",
	'ø': "o", 'Ø': "O",
	'œ': "oe", 'Œ': "OE",
	'ß': "ss",
	'þ': "th", 'Þ': "Th",
	'ð': "d", 'Ð': "D",
	'đ': "d", 'Đ': "D",
	'ł': "l", 'Ł': "L",
}

func transliterate(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if repl, ok := asciiFold[r]; ok {
			b.WriteString(repl)
			continue
		}
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return b.String()
}
