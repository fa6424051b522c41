package monitor

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// scalarCounters is the flat block of the progress report. The counter
// classification lives here in the schema, not in runtime value inspection:
// everything in this struct is scalar, everything in Report.Keyed is a
// breakdown table.
type scalarCounters struct {
	OK                 int64  `yaml:"ok"`
	Failed             int64  `yaml:"failed"`
	Denied             int64  `yaml:"denied"`
	Skipped            int64  `yaml:"skipped"`
	Products           int64  `yaml:"products"`
	ProductsDone       int64  `yaml:"productsDone"`
	InvalidOutput      int64  `yaml:"invalidOutput"`
	EmptyList          int64  `yaml:"emptyList"`
	Duplicities        int64  `yaml:"duplicities"`
	Reviews            int64  `yaml:"reviews"`
	QuestionAndAnswers int64  `yaml:"questionAndAnswers"`
	DatasetDate        string `yaml:"datasetDate,omitempty"`
	DefaultDatasetID   string `yaml:"defaultDatasetId,omitempty"`
	DatasetName        string `yaml:"datasetName,omitempty"`
}

// KeyedBlock is one non-empty breakdown table rendered as its own block.
type KeyedBlock struct {
	Name  string
	Table any
}

// Report is the structured progress summary. Custom stats partition the
// same way the fixed counters do: scalar values join the scalar block,
// map values become keyed blocks of their own.
type Report struct {
	Scalars      scalarCounters
	ScalarCustom map[string]any
	Keyed        []KeyedBlock

	// BlockRatio is denied / (ok + denied) as a percentage, the primary
	// health signal for a run. 0 when no requests finished yet.
	BlockRatio float64
}

// Summarize builds the progress report from the current counters.
func (m *Monitor) Summarize() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.Summarize()
}

// Summarize builds a progress report from a counter snapshot; it also
// works on stats read straight from the durable store. Every map is copied
// into the report, so the report stays stable while counters keep moving.
func (s *Stats) Summarize() *Report {
	r := &Report{
		Scalars: scalarCounters{
			OK:                 s.OK,
			Failed:             s.Failed,
			Denied:             s.Denied,
			Skipped:            s.Skipped,
			Products:           s.Products,
			ProductsDone:       s.ProductsDone,
			InvalidOutput:      s.InvalidOutput,
			EmptyList:          s.EmptyList,
			Duplicities:        s.Duplicities,
			Reviews:            s.Reviews,
			QuestionAndAnswers: s.QuestionAndAnswers,
			DatasetDate:        s.DatasetDate,
			DefaultDatasetID:   s.DefaultDatasetID,
			DatasetName:        s.DatasetName,
		},
	}

	if len(s.RequestsPerLabel) > 0 {
		r.Keyed = append(r.Keyed, KeyedBlock{Name: "requestsPerLabel", Table: copyTable(s.RequestsPerLabel)})
	}
	if len(s.ProductsDonePerSubcategory) > 0 {
		r.Keyed = append(r.Keyed, KeyedBlock{Name: "productsDonePerSubcategory", Table: copyTable(s.ProductsDonePerSubcategory)})
	}

	for _, k := range sortedKeys(s.Custom) {
		switch v := s.Custom[k].(type) {
		case map[string]any:
			r.Keyed = append(r.Keyed, KeyedBlock{Name: k, Table: copyTable(v)})
		case map[string]int64:
			r.Keyed = append(r.Keyed, KeyedBlock{Name: k, Table: copyTable(v)})
		default:
			if r.ScalarCustom == nil {
				r.ScalarCustom = map[string]any{}
			}
			r.ScalarCustom[k] = v
		}
	}

	if total := s.OK + s.Denied; total > 0 {
		r.BlockRatio = float64(s.Denied) / float64(total) * 100
	}

	return r
}

func copyTable[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render produces the blocked textual report followed by the block ratio
// line.
func (r *Report) Render() string {
	return r.renderBlocks("\n") + "\n\n" + fmt.Sprintf("[BLOCK RATIO] %.2f%%", r.BlockRatio)
}

// renderBlocks yaml-renders each block and joins them, re-indenting every
// line with the given separator. Scalar custom stats append to the first
// block; keyed blocks get a blank line between them.
func (r *Report) renderBlocks(sep string) string {
	scalar := marshalBlock(r.Scalars)
	if len(r.ScalarCustom) > 0 {
		scalar += "\n" + marshalBlock(r.ScalarCustom)
	}

	blocks := []string{scalar}
	for _, kb := range r.Keyed {
		blocks = append(blocks, marshalBlock(map[string]any{kb.Name: kb.Table}))
	}
	return strings.ReplaceAll(strings.Join(blocks, "\n\n"), "\n", sep)
}

func marshalBlock(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unrenderable: %v>", err)
	}
	return strings.TrimRight(string(out), "\n")
}
