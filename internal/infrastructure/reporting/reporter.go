// Package reporting routes engine failure reports to the structured log and
// keeps per-category counts for health endpoints.
package reporting

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/logger"
)

// Reporter implements shared.ErrorReporter on pkg/logger. Low severity
// reports are logged as warnings, the rest as errors. Context
// cancellations are counted but not logged.
type Reporter struct {
	log *logger.Logger

	mu     sync.Mutex
	counts map[key]int
	hooks  []func(shared.ErrorReport)
}

type key struct {
	category shared.ErrorCategory
	severity shared.Severity
}

var _ shared.ErrorReporter = (*Reporter)(nil)

// New creates a Reporter. A nil log uses logger.Default().
func New(log *logger.Logger) *Reporter {
	if log == nil {
		log = logger.Default()
	}
	return &Reporter{
		log:    log.With(logger.Component("error_reporter")),
		counts: make(map[key]int),
	}
}

// OnReport registers fn to receive every report after it is logged.
func (r *Reporter) OnReport(fn func(shared.ErrorReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Report implements shared.ErrorReporter.
func (r *Reporter) Report(ctx context.Context, report shared.ErrorReport) {
	if report.Category == "" {
		report.Category = shared.CategoryOf(report.Err)
	}

	r.mu.Lock()
	r.counts[key{report.Category, report.Severity}]++
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(report)
	}

	if shared.IsContextError(report.Err) {
		return
	}

	fields := []logger.Field{
		logger.Operation(report.Operation),
		logger.UserID(report.UserID.String()),
		logger.Severity(string(report.Severity)),
		logger.String("category", string(report.Category)),
		logger.Err(report.Err),
	}
	keys := make([]string, 0, len(report.Context))
	for k := range report.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, logger.Any(k, report.Context[k]))
	}

	log := r.log
	if scoped, ok := logger.Lookup(ctx); ok {
		log = scoped.With(logger.Component("error_reporter"))
	}
	if report.Severity == shared.SeverityLow {
		log.Warn("operation degraded", fields...)
		return
	}
	log.Error("operation failed", fields...)
}

// Count returns how many reports of a category and severity were seen.
func (r *Reporter) Count(category shared.ErrorCategory, severity shared.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key{category, severity}]
}

// Total returns the number of reports seen.
func (r *Reporter) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}
