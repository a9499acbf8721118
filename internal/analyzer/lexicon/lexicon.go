// Package lexicon is the default analyzer: it looks words up in a CEFR level
// table and an optional sense dictionary loaded from local files.
package lexicon

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

const (
	maxSenses   = 3
	maxSynonyms = 5
)

var levelNames = [...]string{"A1", "A2", "B1", "B2", "C1", "C2"}

// Sense is one dictionary meaning of a word.
type Sense struct {
	Definition string   `json:"definition"`
	Lemmas     []string `json:"lemmas"`
}

// Lexicon holds the level table and dictionary. It is read-only after Load.
type Lexicon struct {
	levels map[string][]int
	senses map[string][]Sense
}

// New builds a Lexicon from in-memory tables. Levels use 1 (A1) to 6 (C2).
func New(levels map[string][]int, senses map[string][]Sense) *Lexicon {
	lx := &Lexicon{levels: make(map[string][]int, len(levels)), senses: make(map[string][]Sense, len(senses))}
	for w, l := range levels {
		lx.levels[vocab.Key(w)] = append(lx.levels[vocab.Key(w)], l...)
	}
	for w, s := range senses {
		lx.senses[vocab.Key(w)] = append(lx.senses[vocab.Key(w)], s...)
	}
	return lx
}

// Load reads the level table at levelsPath and, when dictionaryPath is not
// empty, the sense dictionary.
func Load(levelsPath, dictionaryPath string) (*Lexicon, error) {
	f, err := os.Open(levelsPath)
	if err != nil {
		return nil, fmt.Errorf("open level table: %w", err)
	}
	defer f.Close() //nolint:errcheck
	levels, err := ReadLevels(f)
	if err != nil {
		return nil, fmt.Errorf("read level table %s: %w", levelsPath, err)
	}

	senses := map[string][]Sense{}
	if dictionaryPath != "" {
		data, err := os.ReadFile(dictionaryPath)
		if err != nil {
			return nil, fmt.Errorf("read dictionary: %w", err)
		}
		if err := json.Unmarshal(data, &senses); err != nil {
			return nil, fmt.Errorf("decode dictionary %s: %w", dictionaryPath, err)
		}
	}
	return New(levels, senses), nil
}

// ReadLevels parses "word,pos,level" rows. A header row is skipped when its
// level column does not parse.
func ReadLevels(r io.Reader) (map[string][]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	levels := make(map[string][]int)
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return levels, nil
		}
		if err != nil {
			return nil, err
		}
		level, ok := ParseLevel(row[2])
		if !ok {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid level %q", line, row[2])
		}
		word := vocab.Key(strings.TrimSpace(row[0]))
		levels[word] = append(levels[word], level)
	}
}

// ParseLevel accepts "A1".."C2" or "1".."6".
func ParseLevel(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return i + 1, true
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(levelNames) {
		return n, true
	}
	return 0, false
}

// LevelName renders a numeric level, clamping to the A1..C2 range.
func LevelName(level int) string {
	level = min(max(level, 1), len(levelNames))
	return levelNames[level-1]
}

// Len reports how many distinct words have a level.
func (lx *Lexicon) Len() int {
	return len(lx.levels)
}

// Analyze implements vocab.Analyzer.
func (lx *Lexicon) Analyze(_ context.Context, word string) (vocab.Record, error) {
	key := vocab.Key(word)
	levels := lx.levels[key]
	if len(levels) == 0 {
		return vocab.Record{}, vocab.ErrNotApplicable
	}
	sum := 0
	for _, l := range levels {
		sum += l
	}
	avg := math.Round(float64(sum) / float64(len(levels)))

	rec := vocab.Record{Word: word, Level: LevelName(int(avg))}
	senses := lx.senses[key]
	if len(senses) > 0 {
		rec.Definition = senses[0].Definition
	}
	rec.Synonyms = strings.Join(synonyms(key, senses), ", ")
	return rec, nil
}

func synonyms(key string, senses []Sense) []string {
	if len(senses) > maxSenses {
		senses = senses[:maxSenses]
	}
	seen := make(map[string]struct{})
	var out []string
	for _, s := range senses {
		for _, lemma := range s.Lemmas {
			if lemma == "" || vocab.Key(lemma) == key {
				continue
			}
			if _, dup := seen[lemma]; dup {
				continue
			}
			seen[lemma] = struct{}{}
			out = append(out, lemma)
			if len(out) == maxSynonyms {
				return out
			}
		}
	}
	return out
}

// Factory returns a per-worker initializer that loads its own Lexicon.
func Factory(levelsPath, dictionaryPath string) vocab.AnalyzerFactory {
	return func(ctx context.Context) (vocab.Analyzer, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Load(levelsPath, dictionaryPath)
	}
}
