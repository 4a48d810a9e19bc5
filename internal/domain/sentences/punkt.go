package sentences

import (
	"fmt"
	"strings"

	punkt "github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Punkt splits text with the English punkt model. It learns abbreviations
// and sentence starters from training data instead of a fixed list.
type Punkt struct {
	tok *punkt.DefaultSentenceTokenizer
}

func NewPunkt() (*Punkt, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load punkt model: %w", err)
	}
	return &Punkt{tok: tok}, nil
}

func (p *Punkt) Segment(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	out := []string{}
	if text == "" {
		return out
	}
	for _, s := range p.tok.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
