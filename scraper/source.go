package scraper

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render modes.
const (
	RenderHTTP    = "http"
	RenderBrowser = "browser"
)

// Selectors are the CSS selectors used to pull listing cards out of a
// result page. Card is required; every other selector is evaluated inside
// a card, except Next which is evaluated on the whole page.
type Selectors struct {
	Card        string `yaml:"card"`
	Title       string `yaml:"title"`
	Price       string `yaml:"price"`
	Location    string `yaml:"location"`
	Category    string `yaml:"category"`
	Image       string `yaml:"image"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Next        string `yaml:"next"`
}

// Source describes one marketplace to scrape.
type Source struct {
	Name      string    `yaml:"name"`
	StartURL  string    `yaml:"start_url"`
	Render    string    `yaml:"render"`
	Pages     int       `yaml:"pages"`
	WaitFor   string    `yaml:"wait_for"`
	Selectors Selectors `yaml:"selectors"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads a YAML sources file:
//
//	sources:
//	  - name: gearloop
//	    start_url: https://www.gearloop.se/annonser
//	    render: http
//	    selectors:
//	      card: article.ad
//	      title: h2
//	      link: a
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scraper: read %q: %w", path, err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scraper: parse %q: %w", path, err)
	}
	for i := range f.Sources {
		if err := f.Sources[i].validate(); err != nil {
			return nil, fmt.Errorf("scraper: %q: %w", path, err)
		}
	}
	return f.Sources, nil
}

func (s *Source) validate() error {
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	if s.Name == "" {
		return fmt.Errorf("source without name")
	}
	u, err := url.Parse(s.StartURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source %s: invalid start_url %q", s.Name, s.StartURL)
	}
	switch s.Render = strings.ToLower(strings.TrimSpace(s.Render)); s.Render {
	case "":
		s.Render = RenderHTTP
	case RenderHTTP, RenderBrowser:
	default:
		return fmt.Errorf("source %s: unknown render mode %q", s.Name, s.Render)
	}
	if s.Selectors.Card == "" {
		return fmt.Errorf("source %s: selectors.card is required", s.Name)
	}
	if s.Selectors.Link == "" {
		s.Selectors.Link = "a[href]"
	}
	return nil
}
