package vocab

import "errors"

// ErrNotApplicable signals that an analyzer has nothing to say about an item.
// It is an expected outcome, not a failure.
var ErrNotApplicable = errors.New("item not applicable")

// Header is the column header written at the top of a fresh output file.
var Header = []string{"Word", "CEFR", "Definition", "Synonyms"}

// Record is the enrichment result for one item.
type Record struct {
	Word       string
	Level      string
	Definition string
	Synonyms   string
}

// Row renders the record in output column order.
func (r Record) Row() []string {
	return []string{r.Word, r.Level, r.Definition, r.Synonyms}
}

// Result is the outcome of analyzing a single item. OK is false when the
// analyzer returned no record.
type Result struct {
	Record Record
	OK     bool
}

// Found wraps a record in a successful Result.
func Found(rec Record) Result {
	return Result{Record: rec, OK: true}
}
