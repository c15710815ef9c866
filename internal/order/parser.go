package order

import (
	"fmt"
	"strconv"
	"strings"
)

// maxCustomDepth bounds nesting of custom orderer definitions that
// reference each other.
const maxCustomDepth = 8

// Parser turns footer command lines into orderers. Custom names from
// the configuration expand to their semicolon-separated definitions.
type Parser struct {
	custom    map[string]string
	ignoreThe bool
}

// NewParser builds a parser. ignoreThe is the configured default for
// the sort orderer; custom maps user names to orderer command lines.
func NewParser(custom map[string]string, ignoreThe bool) *Parser {
	return &Parser{custom: custom, ignoreThe: ignoreThe}
}

// Names lists every command name the parser accepts, custom names
// included.
func (p *Parser) Names() []string {
	names := []string{"album", "artist", "sort", "modified", "loved", "playcount"}
	for name := range p.custom {
		names = append(names, name)
	}
	return names
}

// ParseChain parses a semicolon-separated list of orderer command
// lines.
func (p *Parser) ParseChain(line string) ([]Orderer, error) {
	return p.parseChain(line, 0)
}

func (p *Parser) parseChain(line string, depth int) ([]Orderer, error) {
	var orderers []Orderer
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := p.parse(part, depth)
		if err != nil {
			return nil, err
		}
		orderers = append(orderers, parsed...)
	}
	return orderers, nil
}

// Parse parses a single orderer command line. A custom name may expand
// to several orderers.
func (p *Parser) Parse(line string) ([]Orderer, error) {
	return p.parse(strings.TrimSpace(line), 0)
}

func (p *Parser) parse(line string, depth int) ([]Orderer, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty orderer command")
	}
	name, args := tokens[0], tokens[1:]

	switch name {
	case "album":
		if len(args) == 0 {
			return nil, fmt.Errorf("album: missing pattern")
		}
		filter, err := NewAlbumFilter(strings.Join(args, " "))
		if err != nil {
			return nil, fmt.Errorf("album: %w", err)
		}
		return []Orderer{filter}, nil

	case "artist":
		if len(args) == 0 {
			return nil, fmt.Errorf("artist: missing pattern")
		}
		filter, err := NewArtistFilter(strings.Join(args, " "))
		if err != nil {
			return nil, fmt.Errorf("artist: %w", err)
		}
		return []Orderer{filter}, nil

	case "sort":
		orderer := Sort{IgnoreThe: p.ignoreThe}
		err := kwargs(args, map[string]setter{
			"ignore_the": boolSetter(&orderer.IgnoreThe),
			"reverse":    boolSetter(&orderer.Reverse),
		})
		if err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		return []Orderer{orderer}, nil

	case "modified":
		orderer := Modified{}
		err := kwargs(args, map[string]setter{
			"reverse": boolSetter(&orderer.Reverse),
		})
		if err != nil {
			return nil, fmt.Errorf("modified: %w", err)
		}
		return []Orderer{orderer}, nil

	case "loved":
		orderer := NewFractionLoved()
		err := kwargs(args, map[string]setter{
			"min":              floatSetter(&orderer.Min),
			"max":              floatSetter(&orderer.Max),
			"penalize_unloved": boolSetter(&orderer.PenalizeUnloved),
			"reverse":          boolSetter(&orderer.Reverse),
		})
		if err != nil {
			return nil, fmt.Errorf("loved: %w", err)
		}
		return []Orderer{orderer}, nil

	case "playcount":
		orderer := NewPlaycount()
		err := kwargs(args, map[string]setter{
			"min":     floatSetter(&orderer.Min),
			"max":     floatSetter(&orderer.Max),
			"reverse": boolSetter(&orderer.Reverse),
		})
		if err != nil {
			return nil, fmt.Errorf("playcount: %w", err)
		}
		return []Orderer{orderer}, nil
	}

	if definition, ok := p.custom[name]; ok {
		if depth >= maxCustomDepth {
			return nil, fmt.Errorf("custom orderer %q: definitions nested too deeply", name)
		}
		if len(args) > 0 {
			return nil, fmt.Errorf("custom orderer %q takes no arguments", name)
		}
		return p.parseChain(definition, depth+1)
	}

	return nil, fmt.Errorf("unknown orderer %q", name)
}

type setter func(value string) error

func boolSetter(dest *bool) setter {
	return func(value string) error {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		*dest = parsed
		return nil
	}
}

func floatSetter(dest *float64) setter {
	return func(value string) error {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		*dest = parsed
		return nil
	}
}

// kwargs maps key=value tokens onto setters, rejecting malformed
// tokens and unknown keys.
func kwargs(tokens []string, setters map[string]setter) error {
	for _, token := range tokens {
		key, value, found := strings.Cut(token, "=")
		if !found {
			return fmt.Errorf("expected key=value, got %q", token)
		}
		set, ok := setters[key]
		if !ok {
			return fmt.Errorf("unknown option %q", key)
		}
		if err := set(value); err != nil {
			return err
		}
	}
	return nil
}
