package taxonomy

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// shortKeywordRunes is the length at or below which a keyword is always
// matched on word boundaries.
const shortKeywordRunes = 3

// Keyword is a single search term.
type Keyword struct {
	Term      string
	WholeWord bool
}

// Rule binds an ordered keyword list to a category.
type Rule struct {
	Category Category
	Keywords []Keyword
}

// Table is an immutable, ordered set of keyword rules.
type Table struct {
	rules []Rule
}

// ruleFile is the YAML layout of a keyword table file:
//
//	- category: amplifiers
//	  keywords: [förstärkare, combo]
//	  whole_words: [amp, cab]
type ruleFile struct {
	Category   string   `yaml:"category"`
	Keywords   []string `yaml:"keywords"`
	WholeWords []string `yaml:"whole_words"`
}

// NewTable validates rules and returns them sorted in category order.
// Terms are lower-cased and short terms are forced to whole-word matching.
// "other" may not carry keywords.
func NewTable(rules []Rule) (*Table, error) {
	byCat := make(map[Category][]Keyword, len(rules))
	for _, r := range rules {
		if !r.Category.Valid() {
			return nil, fmt.Errorf("taxonomy: unknown category %q", r.Category)
		}
		if r.Category == Other {
			return nil, fmt.Errorf("taxonomy: category %q cannot have keywords", Other)
		}
		for _, kw := range r.Keywords {
			term := strings.ToLower(strings.TrimSpace(kw.Term))
			if term == "" {
				continue
			}
			byCat[r.Category] = append(byCat[r.Category], Keyword{
				Term:      term,
				WholeWord: kw.WholeWord || utf8.RuneCountInString(term) <= shortKeywordRunes,
			})
		}
	}

	t := &Table{}
	for _, c := range order {
		if kws, ok := byCat[c]; ok && len(kws) > 0 {
			t.rules = append(t.rules, Rule{Category: c, Keywords: kws})
		}
	}
	return t, nil
}

// LoadTable reads a YAML keyword file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read %q: %w", path, err)
	}
	var entries []ruleFile
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("taxonomy: parse %q: %w", path, err)
	}

	rules := make([]Rule, 0, len(entries))
	for _, e := range entries {
		c, ok := Parse(e.Category)
		if !ok {
			return nil, fmt.Errorf("taxonomy: %q: unknown category %q", path, e.Category)
		}
		r := Rule{Category: c}
		for _, k := range e.Keywords {
			r.Keywords = append(r.Keywords, Keyword{Term: k})
		}
		for _, k := range e.WholeWords {
			r.Keywords = append(r.Keywords, Keyword{Term: k, WholeWord: true})
		}
		rules = append(rules, r)
	}
	return NewTable(rules)
}

// Rules returns a copy of the rules in iteration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = Rule{Category: r.Category, Keywords: append([]Keyword(nil), r.Keywords...)}
	}
	return out
}

// DefaultTable returns the built-in keyword table.
func DefaultTable() *Table {
	t, err := NewTable(defaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

func terms(ts ...string) []Keyword {
	out := make([]Keyword, len(ts))
	for i, s := range ts {
		out[i] = Keyword{Term: s}
	}
	return out
}

func words(ts ...string) []Keyword {
	out := make([]Keyword, len(ts))
	for i, s := range ts {
		out[i] = Keyword{Term: s, WholeWord: true}
	}
	return out
}

func defaultRules() []Rule {
	return []Rule{
		{Category: PedalsEffects, Keywords: append(terms(
			"pedal", "effektpedal", "overdrive", "distortion", "fuzz", "delay", "reverbpedal",
			"looper", "wah", "chorus", "phaser", "flanger", "tremolo", "multieffekt", "pedalboard",
			"tube screamer", "big muff", "strymon", "electro-harmonix", "line 6 helix", "kemper",
		), words("boss", "tc electronic", "mxr", "ehx", "fx")...)},
		{Category: Amplifiers, Keywords: append(terms(
			"förstärkare", "gitarrförstärkare", "basförstärkare", "combo", "rörtopp", "gitarrtopp",
			"kabinett", "högtalarlåda", "marshall", "mesa boogie", "orange rockerverb", "twin reverb",
			"blues junior", "hot rod deluxe", "ampeg", "peavey", "laney", "hughes & kettner",
		), words("amp", "cab", "engl", "vox ac30", "jcm")...)},
		{Category: GuitarsBass, Keywords: append(terms(
			"gitarr", "elgitarr", "akustisk gitarr", "western", "klassisk gitarr", "basgitarr",
			"elbas", "basar", "fender", "gibson", "stratocaster", "telecaster", "les paul",
			"jazz bass", "precision bass", "epiphone", "ibanez", "gretsch", "rickenbacker",
			"squier", "schecter", "esp ltd", "martin d-", "taylor", "yamaha pacifica", "ukulele",
			"mandolin", "banjo",
		), words("bas", "sg", "prs")...)},
		{Category: DrumsPercussion, Keywords: append(terms(
			"trummor", "trumset", "trumma", "virvel", "cymbal", "hihat", "hi-hat", "baskagge",
			"bastrumma", "slagverk", "percussion", "cajon", "djembe", "elektroniskt trumset",
			"roland td", "pearl", "tama", "ludwig", "zildjian", "sabian", "paiste", "trumstockar",
		), words("tom", "dw")...)},
		{Category: KeysPianos, Keywords: append(terms(
			"piano", "digitalpiano", "flygel", "pianino", "orgel", "synth", "synthesizer",
			"keyboard", "stage piano", "rhodes", "wurlitzer", "hammond", "moog", "nord stage",
			"nord electro", "nord lead", "juno", "prophet", "korg minilogue", "arturia",
		), words("nord")...)},
		{Category: StudioRecording, Keywords: append(terms(
			"mikrofon", "ljudkort", "audio interface", "studiomonitor", "monitorer",
			"preamp", "kompressor", "inspelning", "hörlurar", "focusrite",
			"universal audio", "neumann", "shure sm", "adam audio", "genelec",
		), words("mic", "daw", "apollo", "rode")...)},
		{Category: DJLive, Keywords: append(terms(
			"dj controller", "skivspelare", "turntable", "cdj", "mixerbord", "pa-system",
			"pa system", "aktiv högtalare", "slutsteg", "pioneer ddj", "technics", "ljusrigg",
			"rökmaskin", "traktor", "serato",
		), words("dj", "pa")...)},
		{Category: WindInstruments, Keywords: append(terms(
			"saxofon", "trumpet", "trombon", "klarinett", "tvärflöjt", "flöjt", "blockflöjt",
			"valthorn", "tuba", "kornett", "oboe", "fagott", "munspel",
		), words("sax")...)},
		{Category: Accessories, Keywords: append(terms(
			"strängar", "kapodaster", "plektrum", "gigbag", "case", "väska", "stativ",
			"gitarrstativ", "notställ", "kabel", "kablar", "stämapparat", "tuner", "gitarrband",
			"axelband", "reservdelar", "pickup", "mikrofonstativ",
		), words("capo")...)},
	}
}
