package stage

import (
	"context"
	"fmt"
	"sort"

	"github.com/jaki95/dataset-cleaner/internal/domain"
	"github.com/jaki95/dataset-cleaner/internal/knowledge"
	"github.com/jaki95/dataset-cleaner/internal/profiler"
)

// SchemaValidation profiles the dataset and merges the suggestions of the
// domain knowledge service into the rule-based profiles.
type SchemaValidation struct {
	service knowledge.Service
	opts    Options
}

// NewSchemaValidation creates the schema validation stage. A nil service
// behaves as an unavailable one.
func NewSchemaValidation(service knowledge.Service, opts Options) *SchemaValidation {
	if service == nil {
		service = knowledge.Unavailable{}
	}
	return &SchemaValidation{service: service, opts: opts.withDefaults()}
}

// Name implements Stage.
func (s *SchemaValidation) Name() string { return domain.StageSchema }

// Execute implements Stage.
func (s *SchemaValidation) Execute(ctx context.Context, ds *domain.Dataset, _ []domain.StageOutcome) (*domain.Dataset, domain.StageOutcome, error) {
	out := begin(s.Name())
	if len(ds.Columns) == 0 || ds.Rows() == 0 {
		return nil, finish(out), fmt.Errorf("%w: %d columns, %d rows", ErrEmptyDataset, len(ds.Columns), ds.Rows())
	}

	next := ds.Clone()
	next.Hints = nil
	profiler.Refresh(next)
	if allProtected(next) {
		return nil, finish(out), fmt.Errorf("%w: %d columns", ErrNoCleanableColumns, len(next.Columns))
	}

	label := knowledge.UnknownDomain
	hints, err := s.analyze(ctx, next)
	if err != nil {
		s.opts.Logger.Warn("Domain knowledge service failed, using rule-based profiles", "error", err)
		out.Degraded = true
		out.Notes = append(out.Notes, fmt.Sprintf("degraded mode: rule-based profiles only (%v)", err))
		label = knowledge.GuessDomain(next.Columns)
	} else {
		accepted, notes := mergeHints(next, hints)
		out.Notes = append(out.Notes, notes...)
		next.Hints = accepted
		profiler.Refresh(next)
		if accepted.Domain != "" {
			label = accepted.Domain
		}
	}
	if next.Hints == nil {
		next.Hints = &domain.Hints{}
	}
	next.Hints.Domain = label

	report := &domain.SchemaReport{
		Columns:   append([]string(nil), next.Columns...),
		DTypes:    make(map[string]domain.ColumnType, len(next.Columns)),
		Units:     make(map[string]domain.Unit, len(next.Columns)),
		Protected: []string{},
		Rows:      next.Rows(),
		Domain:    label,
		Degraded:  out.Degraded,
	}
	for _, name := range next.Columns {
		p := next.Profiles[name]
		report.DTypes[name] = p.Type
		report.Units[name] = p.Unit
		if p.Protected {
			report.Protected = append(report.Protected, name)
		}
		if p.Rows > 0 && p.Missing == p.Rows {
			report.Issues = append(report.Issues, fmt.Sprintf("column %q is empty", name))
		}
	}
	out.Schema = report

	next.Record(domain.Mutation{
		Stage:     s.Name(),
		Operation: "profile",
		Detail:    fmt.Sprintf("%d columns profiled, domain %s", len(next.Columns), label),
		Rows:      next.Rows(),
	})
	return next, finish(out), nil
}

// analyze calls the service under the configured timeout. It returns as soon
// as the deadline passes even if the service ignores its context.
func (s *SchemaValidation) analyze(ctx context.Context, ds *domain.Dataset) (*domain.Hints, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.KnowledgeTimeout)
	defer cancel()

	type result struct {
		hints *domain.Hints
		err   error
	}
	done := make(chan result, 1)
	req := knowledge.NewRequest(ds, s.opts.SampleRows)
	go func() {
		hints, err := s.service.Analyze(ctx, req)
		done <- result{hints: hints, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.hints == nil {
			return nil, fmt.Errorf("%w: empty response", knowledge.ErrMalformedResponse)
		}
		return r.hints, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", knowledge.ErrUnavailable, ctx.Err())
	}
}

// mergeHints keeps the suggestions that may be applied to ds. Suggestions
// for unknown columns are dropped, and so is anything that would unset or
// bypass protection.
func mergeHints(ds *domain.Dataset, hints *domain.Hints) (*domain.Hints, []string) {
	accepted := &domain.Hints{Domain: hints.Domain, Columns: make(map[string]domain.ColumnHint)}
	var notes []string

	for _, name := range sortedHintColumns(hints) {
		hint := hints.Columns[name]
		p, ok := ds.Profiles[name]
		if !ok {
			notes = append(notes, fmt.Sprintf("discarded hint for unknown column %q", name))
			continue
		}
		if p.Protected {
			if hint.Type != "" && hint.Type != domain.TypeDatetime {
				notes = append(notes, fmt.Sprintf("discarded type %q for protected column %q", hint.Type, name))
			}
			if hint.Remove || hint.NoPredictiveValue {
				notes = append(notes, fmt.Sprintf("discarded removal suggestion for protected column %q", name))
			}
			var transforms []string
			for _, t := range hint.Transformations {
				if t == domain.TransformDate {
					transforms = append(transforms, t)
				}
			}
			hint = domain.ColumnHint{Reason: hint.Reason, Transformations: transforms}
		}
		accepted.Columns[name] = hint
	}
	return accepted, notes
}

func sortedHintColumns(h *domain.Hints) []string {
	names := make([]string, 0, len(h.Columns))
	for name := range h.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func allProtected(ds *domain.Dataset) bool {
	for _, name := range ds.Columns {
		if !ds.Profiles[name].Protected {
			return false
		}
	}
	return true
}
