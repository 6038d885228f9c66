package offers

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/anyascii/go"
)

type referenceName struct {
	display string
	compact string
}

// AirlineMatcher finds reference airline names and "Operated by" clauses in a
// card text. It is immutable after construction and safe for concurrent use.
type AirlineMatcher struct {
	names []referenceName
	slots int
}

// NewAirlineMatcher builds a matcher over the reference names. Longer names
// are tried first so that "Aerolineas Argentinas" wins over "Argentinas"
// style substrings.
func NewAirlineMatcher(reference []string, slots int) *AirlineMatcher {
	if slots < 1 {
		slots = DefaultAttributionSlots
	}

	seen := make(map[string]struct{}, len(reference))
	names := make([]referenceName, 0, len(reference))
	for _, name := range reference {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, referenceName{display: name, compact: compactForm(name)})
	}

	sort.SliceStable(names, func(i, j int) bool {
		return spacelessLen(names[i].display) > spacelessLen(names[j].display)
	})

	return &AirlineMatcher{names: names, slots: slots}
}

// Slots returns the number of attribution slots every Match result carries.
func (m *AirlineMatcher) Slots() int { return m.slots }

// Airlines returns the reference names present in text, ordered by where
// they first appear. Matching runs on the compact form of both sides, so
// "Latam Airlines" in the text matches "LATAMAirlines" style renderings and
// accented spellings match their ASCII reference.
func (m *AirlineMatcher) Airlines(text string) []string {
	haystack := compactForm(text)
	consumed := make([]bool, len(haystack))

	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, ref := range m.names {
		if ref.compact == "" {
			continue
		}
		pos := indexUnconsumed(haystack, ref.compact, consumed)
		if pos < 0 {
			continue
		}
		for i := pos; i < pos+len(ref.compact); i++ {
			consumed[i] = true
		}
		hits = append(hits, hit{name: ref.display, pos: pos})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}

// Match returns exactly Slots() attribution pairs for text. Airlines and
// operators pair up by position; unused slots are nil.
func (m *AirlineMatcher) Match(text string) []Attribution {
	airlines := m.Airlines(text)
	operators := Operators(text)

	pairs := make([]Attribution, m.slots)
	for i := range pairs {
		if i < len(airlines) {
			pairs[i].Airline = strPtr(airlines[i])
		}
		if i < len(operators) {
			pairs[i].Operator = strPtr(operators[i])
		}
	}
	return pairs
}

var (
	operatedByPattern = regexp.MustCompile(`(?i)operated by[\s\x{00A0}]+`)
	// An operator name ends at a connective word, a digit, an opening
	// parenthesis or any character that cannot appear in a carrier name.
	operatorEndPattern = regexp.MustCompile(`(?i)[\s\x{00A0}](?:for|as|by|with)\b|\d|\(|[^\p{L}\p{N}_\s\x{00A0}!&.'\x{2019}\-]`)
)

// Operators returns the operating carriers named in "Operated by X" clauses,
// in order of appearance.
func Operators(text string) []string {
	var out []string
	for _, loc := range operatedByPattern.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if end := operatorEndPattern.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		name := strings.TrimFunc(rest, unicode.IsSpace)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func compactForm(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ',', '\u00a0', '\u202f', '\t', '\n':
			return -1
		}
		return r
	}, anyascii.Transliterate(s))
}

func spacelessLen(s string) int {
	return utf8.RuneCountInString(strings.ReplaceAll(s, " ", ""))
}

// indexUnconsumed finds the first occurrence of needle in haystack that does
// not overlap a span already claimed by a longer name.
func indexUnconsumed(haystack, needle string, consumed []bool) int {
	offset := 0
	for offset <= len(haystack)-len(needle) {
		i := strings.Index(haystack[offset:], needle)
		if i < 0 {
			return -1
		}
		start := offset + i
		free := true
		for j := start; j < start+len(needle); j++ {
			if consumed[j] {
				free = false
				break
			}
		}
		if free {
			return start
		}
		offset = start + 1
	}
	return -1
}
