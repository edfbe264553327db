// Package questions holds the static check-in question bank, embedded as
// YAML so the sequence can be edited without touching code.
package questions

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/avoronov/journal-bot/internal/domain"
)

//go:embed bank.yaml
var bankYAML []byte

type bankFile struct {
	Questions []questionYAML `yaml:"questions"`
}

type questionYAML struct {
	ID       int          `yaml:"id"`
	Category string       `yaml:"category"`
	Order    int          `yaml:"order"`
	Text     string       `yaml:"text"`
	Options  []optionYAML `yaml:"options"`
}

type optionYAML struct {
	Label string   `yaml:"label"`
	Value string   `yaml:"value"`
	Score *float64 `yaml:"score"`
}

// Bank is the ordered, read-only question sequence of a session.
type Bank struct {
	ordered []domain.Question
	byID    map[int]domain.Question
}

// Load parses and validates the embedded bank.
func Load() (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(bankYAML, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}

	b := &Bank{byID: make(map[int]domain.Question, len(f.Questions))}
	for _, q := range f.Questions {
		if q.ID <= 0 {
			return nil, fmt.Errorf("question %q: missing id", q.Text)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		if q.Text == "" || q.Category == "" {
			return nil, fmt.Errorf("question %d: missing text or category", q.ID)
		}
		if len(q.Options) == 0 {
			return nil, fmt.Errorf("question %d: no options", q.ID)
		}
		dq := domain.Question{
			ID:       q.ID,
			Category: q.Category,
			Text:     q.Text,
			Order:    q.Order,
		}
		for _, o := range q.Options {
			if o.Label == "" || o.Value == "" {
				return nil, fmt.Errorf("question %d: option missing label or value", q.ID)
			}
			dq.Options = append(dq.Options, domain.Option{Label: o.Label, Value: o.Value, Score: o.Score})
		}
		b.byID[dq.ID] = dq
		b.ordered = append(b.ordered, dq)
	}
	sort.Slice(b.ordered, func(i, j int) bool { return b.ordered[i].Order < b.ordered[j].Order })
	return b, nil
}

// Len returns the number of questions in the sequence.
func (b *Bank) Len() int { return len(b.ordered) }

// At returns the i-th question of the sequence.
func (b *Bank) At(i int) (domain.Question, bool) {
	if i < 0 || i >= len(b.ordered) {
		return domain.Question{}, false
	}
	return b.ordered[i], true
}

// ByID looks a question up by its identifier.
func (b *Bank) ByID(id int) (domain.Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Categories returns the distinct categories in sequence order.
func (b *Bank) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, q := range b.ordered {
		if !seen[q.Category] {
			seen[q.Category] = true
			cats = append(cats, q.Category)
		}
	}
	return cats
}
