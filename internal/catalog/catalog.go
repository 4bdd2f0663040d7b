package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Rune describes one tradable high rune
type Rune struct {
	Code         string   `json:"code"`
	Number       int      `json:"number"`
	DisplayName  string   `json:"displayName"`
	LocalName    string   `json:"localName"`
	SurfaceForms []string `json:"surfaceForms"`
}

// Match is one occurrence of a rune surface form inside a text
type Match struct {
	Code  string
	Start int
	End   int
}

const (
	// MinNumber is the lowest rune number tracked
	MinNumber = 23
	// MaxNumber is the highest rune number tracked
	MaxNumber = 33
)

// Catalog is the immutable table of tracked runes
type Catalog struct {
	runes  []Rune
	byCode map[string]int
	names  []namePattern
}

type namePattern struct {
	index int
	re    *regexp.Regexp
}

var (
	// "23#", "23 #", "23号"; the leading digit guard rejects "123#"
	tagSuffixRegex = regexp.MustCompile(`(?:^|[^0-9])([0-9]{2})\s*(?:#|号)`)
	// "#23"; the trailing digit guard rejects "#230"
	tagPrefixRegex = regexp.MustCompile(`#\s*([0-9]{2})(?:[^0-9]|$)`)
)

var defaultRunes = []struct {
	number int
	name   string
	local  string
}{
	{23, "Mal", "马尔"},
	{24, "Ist", "伊斯特"},
	{25, "Gul", "古尔"},
	{26, "Vex", "伐克斯"},
	{27, "Ohm", "欧姆"},
	{28, "Lo", "罗"},
	{29, "Sur", "瑟"},
	{30, "Ber", "贝"},
	{31, "Jah", "乔"},
	{32, "Cham", "查姆"},
	{33, "Zod", "萨德"},
}

// Default returns the catalog of the 11 high runes, 23# (Mal) to 33# (Zod)
func Default() *Catalog {
	runes := make([]Rune, 0, len(defaultRunes))
	for _, r := range defaultRunes {
		n := strconv.Itoa(r.number)
		runes = append(runes, Rune{
			Code:         n + "#",
			Number:       r.number,
			DisplayName:  r.name,
			LocalName:    r.local,
			SurfaceForms: []string{n + "#", n + "号", "#" + n, r.name, r.local},
		})
	}
	return build(runes)
}

func build(runes []Rune) *Catalog {
	c := &Catalog{
		runes:  runes,
		byCode: make(map[string]int, len(runes)),
	}
	for i, r := range runes {
		c.byCode[r.Code] = i

		// Latin names need word boundaries so "Lo" does not fire inside "Login"
		c.names = append(c.names, namePattern{
			index: i,
			re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(r.DisplayName) + `\b`),
		})
		if r.LocalName != "" {
			c.names = append(c.names, namePattern{
				index: i,
				re:    regexp.MustCompile(regexp.QuoteMeta(r.LocalName)),
			})
		}
	}
	return c
}

// Runes returns the runes in catalog order
func (c *Catalog) Runes() []Rune {
	out := make([]Rune, len(c.runes))
	copy(out, c.runes)
	return out
}

// Codes returns the rune codes in catalog order
func (c *Catalog) Codes() []string {
	codes := make([]string, len(c.runes))
	for i, r := range c.runes {
		codes[i] = r.Code
	}
	return codes
}

// Get returns the rune for a code
func (c *Catalog) Get(code string) (Rune, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return Rune{}, false
	}
	return c.runes[i], true
}

// Valid reports whether code belongs to the catalog
func (c *Catalog) Valid(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// Index returns the catalog position of code, or -1
func (c *Catalog) Index(code string) int {
	i, ok := c.byCode[code]
	if !ok {
		return -1
	}
	return i
}

// Len returns the number of runes in the catalog
func (c *Catalog) Len() int {
	return len(c.runes)
}

// Lookup finds the rune a text refers to. Numeric tags are checked before
// names; inside each tier the first rune in catalog order wins.
func (c *Catalog) Lookup(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	best := -1
	for _, m := range c.numericMatches(text) {
		i := c.byCode[m.Code]
		if best == -1 || i < best {
			best = i
		}
	}
	if best >= 0 {
		return c.runes[best].Code, true
	}

	for _, p := range c.names {
		if p.re.MatchString(text) {
			return c.runes[p.index].Code, true
		}
	}
	return "", false
}

// FindAll returns every rune occurrence in text ordered by position.
// Name matches that overlap a numeric tag are dropped.
func (c *Catalog) FindAll(text string) []Match {
	if text == "" {
		return nil
	}

	matches := c.numericMatches(text)
	for _, p := range c.names {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlaps(matches, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, Match{Code: c.runes[p.index].Code, Start: loc[0], End: loc[1]})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// numericMatches collects in-range "NN#", "NN号" and "#NN" tags
func (c *Catalog) numericMatches(text string) []Match {
	var matches []Match
	add := func(digits string, start, end int) {
		number, err := strconv.Atoi(digits)
		if err != nil || number < MinNumber || number > MaxNumber {
			return
		}
		code := strconv.Itoa(number) + "#"
		if _, ok := c.byCode[code]; !ok {
			return
		}
		if overlaps(matches, start, end) {
			return
		}
		matches = append(matches, Match{Code: code, Start: start, End: end})
	}

	for _, loc := range tagSuffixRegex.FindAllStringSubmatchIndex(text, -1) {
		add(text[loc[2]:loc[3]], loc[2], loc[1])
	}
	for _, loc := range tagPrefixRegex.FindAllStringSubmatchIndex(text, -1) {
		add(text[loc[2]:loc[3]], loc[0], loc[3])
	}
	return matches
}

func overlaps(matches []Match, start, end int) bool {
	for _, m := range matches {
		if start < m.End && m.Start < end {
			return true
		}
	}
	return false
}

// Number parses the numeric part of a rune code such as "30#"
func Number(code string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(code, "#"))
	if err != nil {
		return 0
	}
	return n
}
