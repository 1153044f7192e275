package taxonomy

import "strings"

// Category is an internal taxonomy id. The set is fixed at compile time.
type Category string

const (
	PedalsEffects   Category = "pedals-effects"
	Amplifiers      Category = "amplifiers"
	GuitarsBass     Category = "guitars-bass"
	DrumsPercussion Category = "drums-percussion"
	KeysPianos      Category = "keys-pianos"
	StudioRecording Category = "studio-recording"
	DJLive          Category = "dj-live"
	WindInstruments Category = "wind-instruments"
	Accessories     Category = "accessories"
	Other           Category = "other"
)

// order is the category iteration order. The keyword classifier walks rules
// in this order and the first match wins, so a title that hits keywords from
// two categories lands in whichever comes first here.
var order = []Category{
	PedalsEffects,
	Amplifiers,
	GuitarsBass,
	DrumsPercussion,
	KeysPianos,
	StudioRecording,
	DJLive,
	WindInstruments,
	Accessories,
	Other,
}

var labels = map[Category]string{
	PedalsEffects:   "Effekter & pedaler",
	Amplifiers:      "Förstärkare",
	GuitarsBass:     "Gitarrer & basar",
	DrumsPercussion: "Trummor & slagverk",
	KeysPianos:      "Klaviatur & piano",
	StudioRecording: "Studio & inspelning",
	DJLive:          "DJ & live",
	WindInstruments: "Blås",
	Accessories:     "Tillbehör",
	Other:           "Övrigt",
}

// All returns every category in iteration order, "other" last.
func All() []Category {
	out := make([]Category, len(order))
	copy(out, order)
	return out
}

// Valid reports whether c is part of the enumeration.
func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// Label returns the display label, or the raw id for unknown values.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

func (c Category) String() string { return string(c) }

// Parse normalises s and returns the matching category.
func Parse(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return Other, false
	}
	return c, true
}

// OrDefault returns c when it is valid and Other otherwise.
func OrDefault(c Category) Category {
	if c.Valid() {
		return c
	}
	return Other
}
