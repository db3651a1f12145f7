package ingest

import (
	"fmt"
	"io"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ExtractionStrategy pulls candidate listings out of a parsed search page.
// Strategies are independent; ListingParser merges and de-duplicates their output.
type ExtractionStrategy interface {
	Name() string
	TryExtract(doc *goquery.Document) []Listing
}

const (
	StrategyAnchorLink     = "anchor_link"
	StrategyStructuredData = "structured_data"
	StrategyInlineScript   = "inline_script"
)

// StrategyFactory maps strategy names to implementations.
type StrategyFactory struct {
	strategies map[string]ExtractionStrategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{
		strategies: make(map[string]ExtractionStrategy),
	}
}

func (f *StrategyFactory) Register(strategy ExtractionStrategy) {
	f.strategies[strategy.Name()] = strategy
}

func (f *StrategyFactory) Get(name string) (ExtractionStrategy, error) {
	strategy, ok := f.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", name)
	}
	return strategy, nil
}

// Names lists the registered strategy names in lexical order.
func (f *StrategyFactory) Names() []string {
	names := make([]string, 0, len(f.strategies))
	for n := range f.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Global factory instance
var GlobalStrategyFactory = NewStrategyFactory()

func init() {
	GlobalStrategyFactory.Register(AnchorLinkStrategy{})
	GlobalStrategyFactory.Register(StructuredDataStrategy{})
	GlobalStrategyFactory.Register(InlineScriptStrategy{})
}

type ParserOptions struct {
	// DisableInlineScript drops the noisy script-literal heuristic.
	DisableInlineScript bool
}

// DefaultStrategyOrder is the order strategies run in; it fixes result order.
var DefaultStrategyOrder = []string{StrategyAnchorLink, StrategyStructuredData, StrategyInlineScript}

// ListingParser runs an ordered list of strategies over one search page.
type ListingParser struct {
	Strategies []ExtractionStrategy
	Logger     *zap.Logger
}

// NewListingParser builds a parser from the global factory.
func NewListingParser(opts ParserOptions, logger *zap.Logger) *ListingParser {
	p := &ListingParser{Logger: logger}
	for _, name := range DefaultStrategyOrder {
		if opts.DisableInlineScript && name == StrategyInlineScript {
			continue
		}
		s, err := GlobalStrategyFactory.Get(name)
		if err != nil {
			continue
		}
		p.Strategies = append(p.Strategies, s)
	}
	return p
}

// Parse reads an HTML page and returns at most max unique listings in discovery order.
func (p *ListingParser) Parse(r io.Reader, max int) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return p.ParseDocument(doc, max), nil
}

func (p *ListingParser) ParseDocument(doc *goquery.Document, max int) []Listing {
	if max <= 0 {
		return []Listing{}
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var candidates []Listing
	for _, s := range p.Strategies {
		found := s.TryExtract(doc)
		log.Debug("strategy finished", zap.String("strategy", s.Name()), zap.Int("candidates", len(found)))
		candidates = append(candidates, found...)
	}
	return dedupeListings(candidates, max)
}
