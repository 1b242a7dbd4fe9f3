// Package extract recognizes booking facts (place, time, payment) in free chat text.
// Extraction is pure: the same text always yields the same result and nothing is stored.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind tags how a match was recognized.
type Kind int

const (
	KindNone Kind = iota
	KindLexicon
	KindClock
	KindDay
	KindDayPart
)

func (k Kind) String() string {
	switch k {
	case KindLexicon:
		return "lexicon"
	case KindClock:
		return "clock"
	case KindDay:
		return "day"
	case KindDayPart:
		return "day_part"
	default:
		return "none"
	}
}

// Match is the result for one category. The zero value means nothing was found.
type Match struct {
	Value string
	Kind  Kind
}

// NotFound is the empty match.
var NotFound = Match{}

// Found reports whether the category matched.
func (m Match) Found() bool {
	return m.Kind != KindNone && m.Value != ""
}

// Entities holds the per-category results of one extraction. Time carries the
// highest-priority time fact (clock, then day, then day-part); Day is the relative
// day marker on its own so callers can combine it with a clock time.
type Entities struct {
	Place   Match
	Time    Match
	Day     Match
	Payment Match
}

// Empty reports whether no category matched.
func (e Entities) Empty() bool {
	return !e.Place.Found() && !e.Time.Found() && !e.Day.Found() && !e.Payment.Found()
}

const (
	leftEdge  = `(?:^|[^\p{L}\p{N}_])`
	rightEdge = `(?:$|[^\p{L}\p{N}_])`
)

type compiledTerm struct {
	canonical string
	re        *regexp.Regexp
}

type clockPattern struct {
	re    *regexp.Regexp
	parse func(groups []string) (string, bool)
}

// Extractor matches text against a compiled Lexicon. It is safe for concurrent use.
type Extractor struct {
	places     []compiledTerm
	payments   []compiledTerm
	days       []compiledTerm
	dayParts   []compiledTerm
	clockWords []compiledTerm
	clocks     []clockPattern
	date       *regexp.Regexp
}

var (
	ampmPattern   = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_:])(\d{1,2})(?::([0-5]\d))?\s*(a\.?m\.?|p\.?m\.?)` + rightEdge)
	hourMarkPat   = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_:])(\d{1,2})\s?h([0-5]\d)?` + rightEdge)
	colonPattern  = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_:/])(\d{1,2}):([0-5]\d)(?:$|[^\p{L}\p{N}_:])`)
	datePattern   = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_/])(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?(?:$|[^\p{L}\p{N}_/])`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// New compiles the lexicon into an Extractor.
func New(lex Lexicon) *Extractor {
	e := &Extractor{
		places:     compileTerms(lex.Places),
		payments:   compileTerms(lex.Payments),
		days:       compileTerms(lex.Days),
		dayParts:   compileTerms(lex.DayParts),
		clockWords: compileTerms(lex.ClockWords),
		date:       datePattern,
	}

	e.clocks = []clockPattern{
		{re: ampmPattern, parse: parseAMPM},
		{re: hourMarkPat, parse: parseHourMinute},
		{re: colonPattern, parse: parseHourMinute},
	}
	if len(lex.HourPrefixes) > 0 {
		e.clocks = append(e.clocks, clockPattern{re: compilePrefixPattern(lex.HourPrefixes), parse: parseHourMinute})
	}
	return e
}

// Default returns an Extractor over DefaultLexicon.
func Default() *Extractor {
	return New(DefaultLexicon())
}

var sharedDefault = sync.OnceValue(Default)

// Extract runs the default extractor.
func Extract(text string) Entities {
	return sharedDefault().Extract(text)
}

// Extract returns every category recognized in text. It never fails; a category
// with no match is NotFound.
func (e *Extractor) Extract(text string) Entities {
	normalized := normalize(text)
	if normalized == "" {
		return Entities{}
	}

	out := Entities{
		Place:   lexiconMatch(e.places, normalized, KindLexicon),
		Payment: lexiconMatch(e.payments, normalized, KindLexicon),
		Day:     e.matchDay(normalized),
	}

	switch clock := e.matchClock(normalized); {
	case clock.Found():
		out.Time = clock
	case out.Day.Found():
		out.Time = out.Day
	default:
		out.Time = lexiconMatch(e.dayParts, normalized, KindDayPart)
	}
	return out
}

func normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(text), " "))
}

func compileTerms(terms []Term) []compiledTerm {
	out := make([]compiledTerm, 0, len(terms))
	for _, term := range terms {
		canonical := strings.TrimSpace(term.Canonical)
		if canonical == "" {
			continue
		}
		alts := make([]string, 0, len(term.Phrases))
		for _, phrase := range term.Phrases {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase == "" {
				continue
			}
			alts = append(alts, phrasePattern(phrase))
		}
		if len(alts) == 0 {
			continue
		}
		re := regexp.MustCompile(leftEdge + `(` + strings.Join(alts, "|") + `)` + rightEdge)
		out = append(out, compiledTerm{canonical: canonical, re: re})
	}
	return out
}

func phrasePattern(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

func compilePrefixPattern(prefixes []string) *regexp.Regexp {
	alts := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			alts = append(alts, phrasePattern(p))
		}
	}
	return regexp.MustCompile(leftEdge + `(?:` + strings.Join(alts, "|") + `)\s*(\d{1,2})(?::([0-5]\d))?(?:$|[^\p{L}\p{N}_/:])`)
}

// lexiconMatch returns the term whose phrase starts earliest in text. Ties go to
// the longer phrase, then to lexicon order.
func lexiconMatch(terms []compiledTerm, text string, kind Kind) Match {
	best := NotFound
	bestStart, bestLen := -1, 0
	for _, term := range terms {
		loc := term.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		start, length := loc[2], loc[3]-loc[2]
		if bestStart == -1 || start < bestStart || (start == bestStart && length > bestLen) {
			best = Match{Value: term.canonical, Kind: kind}
			bestStart, bestLen = start, length
		}
	}
	return best
}

func (e *Extractor) matchDay(text string) Match {
	best := NotFound
	bestStart := -1

	for _, term := range e.days {
		loc := term.re.FindStringSubmatchIndex(text)
		if loc != nil && (bestStart == -1 || loc[2] < bestStart) {
			best = Match{Value: term.canonical, Kind: KindDay}
			bestStart = loc[2]
		}
	}

	for _, loc := range e.date.FindAllStringSubmatchIndex(text, -1) {
		if bestStart != -1 && loc[2] >= bestStart {
			break
		}
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month, _ := strconv.Atoi(text[loc[4]:loc[5]])
		year := 2024
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(text[loc[6]:loc[7]])
			if year < 100 {
				year += 2000
			}
		}
		if !validDate(day, month, year) {
			continue
		}
		best = Match{Value: fmt.Sprintf("%02d/%02d", day, month), Kind: KindDay}
		bestStart = loc[2]
		break
	}
	return best
}

// validDate reports whether the calendar date exists. Dates without a year are
// checked against a leap year so 29/02 passes and 31/02 does not.
func validDate(day, month, year int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return d.Day() == day && int(d.Month()) == month
}

func (e *Extractor) matchClock(text string) Match {
	best := NotFound
	bestStart := -1

	for _, p := range e.clocks {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if bestStart != -1 && loc[2] >= bestStart {
				break
			}
			value, ok := p.parse(submatches(text, loc))
			if !ok {
				continue
			}
			best = Match{Value: value, Kind: KindClock}
			bestStart = loc[2]
			break
		}
	}

	for _, term := range e.clockWords {
		loc := term.re.FindStringSubmatchIndex(text)
		if loc != nil && (bestStart == -1 || loc[2] < bestStart) {
			best = Match{Value: term.canonical, Kind: KindClock}
			bestStart = loc[2]
		}
	}
	return best
}

// submatches returns the capture groups (without the full match); unmatched groups are "".
func submatches(text string, loc []int) []string {
	groups := make([]string, 0, len(loc)/2-1)
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, text[loc[i]:loc[i+1]])
	}
	return groups
}

func parseHourMinute(groups []string) (string, bool) {
	if len(groups) == 0 {
		return "", false
	}
	hour, err := strconv.Atoi(groups[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", false
	}
	minute := 0
	if len(groups) > 1 && groups[1] != "" {
		minute, err = strconv.Atoi(groups[1])
		if err != nil || minute > 59 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

func parseAMPM(groups []string) (string, bool) {
	if len(groups) < 3 {
		return "", false
	}
	hour, err := strconv.Atoi(groups[0])
	if err != nil || hour < 1 || hour > 12 {
		return "", false
	}
	minute := 0
	if groups[1] != "" {
		minute, _ = strconv.Atoi(groups[1])
	}
	pm := strings.HasPrefix(groups[2], "p")
	switch {
	case pm && hour < 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
