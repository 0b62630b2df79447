// Package transcript reads and edits speech recognition result documents.
//
// Documents follow the recognitions callback shape:
//
//	{"results": [{"results": [{"alternatives": [{"transcript": "...",
//	  "timestamps": [["word", 0.1, 0.4], ...]}]}],
//	  "speaker_labels": [{"from": 0.1, "speaker": 0}, ...]}]}
//
// Edits are applied in place so fields this package does not know about are
// written back untouched.
package transcript

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	resultsPath  = "results.0.results"
	speakersPath = "results.0.speaker_labels"
	hesitation   = "%HESITATION"
)

var (
	ErrMalformed         = errors.New("malformed transcript document")
	ErrEditCountMismatch = errors.New("edit count does not match transcript results")
)

// Snippet is one recognized utterance with its offsets in seconds.
type Snippet struct {
	Transcript string  `json:"transcript"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// Snippets returns one entry per recognition result, in document order.
func Snippets(doc []byte) ([]Snippet, error) {
	results, err := resultList(doc)
	if err != nil {
		return nil, err
	}
	snippets := make([]Snippet, 0, len(results))
	for i, r := range results {
		alt := r.Get("alternatives.0")
		if !alt.Exists() {
			return nil, fmt.Errorf("%w: result %d has no alternatives", ErrMalformed, i)
		}
		sn := Snippet{Transcript: strings.ReplaceAll(alt.Get("transcript").String(), hesitation, "")}
		if ts := alt.Get("timestamps").Array(); len(ts) > 0 {
			sn.Start = ts[0].Get("1").Float()
			sn.End = ts[len(ts)-1].Get("2").Float()
		}
		snippets = append(snippets, sn)
	}
	return snippets, nil
}

// ApplyEdits replaces the transcript of every result with the edit at the
// same position and returns the rewritten document.
func ApplyEdits(doc []byte, edits []string) ([]byte, error) {
	results, err := resultList(doc)
	if err != nil {
		return nil, err
	}
	if len(results) != len(edits) {
		return nil, fmt.Errorf("%w: %d results, %d edits", ErrEditCountMismatch, len(results), len(edits))
	}
	out := doc
	for i, text := range edits {
		out, err = sjson.SetBytes(out, fmt.Sprintf("%s.%d.alternatives.0.transcript", resultsPath, i), text)
		if err != nil {
			return nil, fmt.Errorf("apply edit %d: %w", i, err)
		}
	}
	return out, nil
}

// CleanCSV renders a speaker,transcript,start_time,end_time table.
func CleanCSV(doc []byte) ([]byte, error) {
	snippets, err := Snippets(doc)
	if err != nil {
		return nil, err
	}
	speakers := speakerIndex(gjson.GetBytes(doc, speakersPath).Array())

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"speaker", "transcript", "start_time", "end_time"}); err != nil {
		return nil, err
	}
	for _, s := range snippets {
		row := []string{
			speakers.at(s.Start),
			s.Transcript,
			formatSeconds(s.Start),
			formatSeconds(s.End),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func resultList(doc []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	results := gjson.GetBytes(doc, resultsPath)
	if !results.IsArray() {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, resultsPath)
	}
	return results.Array(), nil
}

type speakerLabels struct {
	from []float64
	ids  []string
}

func speakerIndex(labels []gjson.Result) speakerLabels {
	idx := speakerLabels{
		from: make([]float64, 0, len(labels)),
		ids:  make([]string, 0, len(labels)),
	}
	for _, l := range labels {
		idx.from = append(idx.from, l.Get("from").Float())
		idx.ids = append(idx.ids, l.Get("speaker").String())
	}
	return idx
}

// at returns the speaker of the last label starting at or before t.
func (s speakerLabels) at(t float64) string {
	if len(s.ids) == 0 {
		return ""
	}
	i := sort.Search(len(s.from), func(i int) bool { return s.from[i] > t })
	if i > 0 {
		i--
	}
	return s.ids[i]
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
