package domain

import "time"

// Stage names, in pipeline order.
const (
	StageSchema         = "schema_validation"
	StageImputation     = "missing_imputation"
	StageOutliers       = "outlier_handling"
	StageTransformation = "transformation"
	StageReport         = "report_generation"
)

// ColumnError is a failure isolated to one column and one operation. It is
// recorded in the stage outcome and never aborts the stage.
type ColumnError struct {
	Column    string `json:"column"`
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

// StageOutcome is the structured result of one stage. Exactly one of the
// report pointers is set, matching Stage.
type StageOutcome struct {
	Stage     string        `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Degraded  bool          `json:"degraded,omitempty"`
	Notes     []string      `json:"notes,omitempty"`
	Errors    []ColumnError `json:"errors,omitempty"`

	Schema         *SchemaReport         `json:"schema,omitempty"`
	Imputation     *ImputationReport     `json:"imputation,omitempty"`
	Outliers       *OutlierReport        `json:"outliers,omitempty"`
	Transformation *TransformationReport `json:"transformation,omitempty"`
	Report         *Report               `json:"report,omitempty"`
}

// SchemaReport is the output of schema validation.
type SchemaReport struct {
	Columns   []string              `json:"columns"`
	DTypes    map[string]ColumnType `json:"dtypes"`
	Units     map[string]Unit       `json:"units"`
	Protected []string              `json:"protected"`
	Rows      int                   `json:"rows"`
	Domain    string                `json:"domain"`
	Issues    []string              `json:"issues,omitempty"`
	Degraded  bool                  `json:"degraded"`
}

// ImputationReport is the output of missing-value imputation.
type ImputationReport struct {
	MissingCounts map[string]int  `json:"missing_counts"`
	Imputed       []ImputedColumn `json:"imputed_columns"`
	Skipped       []SkippedColumn `json:"skipped_columns"`
	HighMissing   []string        `json:"high_missing,omitempty"`
}

// ImputedColumn describes how one column was filled.
type ImputedColumn struct {
	Column string `json:"column"`
	Method string `json:"method"`
	Count  int    `json:"count"`
}

// SkippedColumn is a column imputation left alone, with the reason.
type SkippedColumn struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

// OutlierReport is the output of outlier handling, ordered by column.
type OutlierReport struct {
	Columns []OutlierColumn `json:"columns"`
}

// OutlierColumn is the outlier result for a single column.
type OutlierColumn struct {
	Column       string         `json:"column"`
	Count        int            `json:"count"`
	Methods      []string       `json:"methods"`
	MethodCounts map[string]int `json:"method_counts"`
	Action       string         `json:"action"`
	Lower        float64        `json:"lower"`
	Upper        float64        `json:"upper"`
}

// Counts returns the confirmed outlier count per column.
func (r *OutlierReport) Counts() map[string]int {
	counts := make(map[string]int, len(r.Columns))
	for _, c := range r.Columns {
		counts[c.Column] = c.Count
	}
	return counts
}

// TransformationReport is the output of the transformation stage.
type TransformationReport struct {
	Applied   []AppliedTransformation `json:"applied"`
	Removed   []RemovedColumn         `json:"removed"`
	Decisions []RemovalDecision       `json:"decisions"`
}

// AppliedTransformation records a successful column transformation.
type AppliedTransformation struct {
	Column         string `json:"column"`
	Transformation string `json:"transformation"`
	RowsAffected   int    `json:"rows_affected"`
	NewlyMissing   int    `json:"newly_missing,omitempty"`
}

// RemovedColumn is a column dropped by the removal decision.
type RemovedColumn struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

// RemovalDecision records the removal verdict for one column.
type RemovalDecision struct {
	Column          string  `json:"column"`
	Removed         bool    `json:"removed"`
	Reason          string  `json:"reason"`
	Protected       bool    `json:"protected"`
	MissingFraction float64 `json:"missing_fraction"`
	DistinctRatio   float64 `json:"distinct_ratio"`
}

// Report is the final, aggregated result of a job.
type Report struct {
	Summary         string                `json:"summary"`
	Domain          string                `json:"domain"`
	Rows            int                   `json:"rows"`
	ColumnsBefore   int                   `json:"columns_before"`
	ColumnsAfter    int                   `json:"columns_after"`
	Degraded        bool                  `json:"degraded"`
	Schema          *SchemaReport         `json:"schema"`
	Missing         *ImputationReport     `json:"missing"`
	Outliers        *OutlierReport        `json:"outliers"`
	Transformations *TransformationReport `json:"transformations"`
	Errors          []ColumnError         `json:"errors,omitempty"`
	Mutations       []Mutation            `json:"mutations"`
	GeneratedAt     time.Time             `json:"generated_at"`
}
