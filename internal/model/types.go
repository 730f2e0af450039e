// Package model holds the data types shared across the cascade engine:
// cascade/cell documents, session (Echo) state, candidates, refinements,
// and unified log rows.
package model

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// RawValue holds a JSON-schema-shaped value (output shapes, JSON Schema
// documents) that may originate from either a YAML cascade file or a JSON
// API payload. UnmarshalYAML decodes the YAML node generically and
// re-encodes it as JSON so downstream consumers (jsonschema/v5, logsink)
// always see JSON bytes regardless of the source format.
type RawValue []byte

// UnmarshalYAML implements yaml.Unmarshaler by decoding the node into a
// generic value and re-marshaling it as JSON.
func (r *RawValue) UnmarshalYAML(value *yaml.Node) error {
	var generic interface{}
	if err := value.Decode(&generic); err != nil {
		return err
	}
	b, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	*r = b
	return nil
}

// MarshalJSON implements json.Marshaler, matching json.RawMessage
// semantics.
func (r RawValue) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler, matching json.RawMessage
// semantics.
func (r *RawValue) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

// CellMode selects which of the three mutually-exclusive execution modes
// a cell runs under.
type CellMode string

const (
	CellModeAgent     CellMode = "agent"      // LLM with instructions/tools/max_turns
	CellModeTool      CellMode = "tool"       // single deterministic tool call
	CellModeRowMapper CellMode = "row_mapper" // iterate rows of a named temp table
)

// CandidateMode selects how a CandidateLoop resolves its winner.
type CandidateMode string

const (
	CandidateModeSelect       CandidateMode = "select"
	CandidateModeAggregate    CandidateMode = "aggregate"
	CandidateModeFirstValid   CandidateMode = "first_valid"
	CandidateModeAllOrNothing CandidateMode = "all_or_nothing"
)

// WardMode selects how a failed validator affects cell execution.
type WardMode string

const (
	WardModeBlocking WardMode = "blocking"
	WardModeRetry    WardMode = "retry"
	WardModeAdvisory WardMode = "advisory"
)

// WardStage distinguishes pre- from post-cell validation.
type WardStage string

const (
	WardStagePre  WardStage = "pre"
	WardStagePost WardStage = "post"
)

// SessionStatus is the terminal (or current) lifecycle state of an Echo.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// OnErrorPolicy controls for_each_row behavior when a row's cascade fails.
type OnErrorPolicy string

const (
	OnErrorContinue      OnErrorPolicy = "continue"
	OnErrorFailFast      OnErrorPolicy = "fail_fast"
	OnErrorCollectErrors OnErrorPolicy = "collect_errors"
)

// InputField describes one entry of a cascade's inputs_schema.
type InputField struct {
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// CandidateSpec configures per-cell candidate exploration (§3.2, §4.7).
type CandidateSpec struct {
	Factor                 string        `yaml:"factor" json:"factor"` // literal int or a template
	EvaluatorInstructions  string        `yaml:"evaluator_instructions" json:"evaluator_instructions"`
	Mode                   CandidateMode `yaml:"mode" json:"mode"`
	MaxParallel            int           `yaml:"max_parallel" json:"max_parallel"`
}

// ReforgeSpec configures the sequential refinement loop (§3.2, §4.8).
type ReforgeSpec struct {
	Steps        int      `yaml:"steps" json:"steps"`
	HoningPrompt string   `yaml:"honing_prompt" json:"honing_prompt"`
	Mutations    []string `yaml:"mutations,omitempty" json:"mutations,omitempty"`
}

// WardSpec is one pre/post validator declaration (§3.2, §4.9).
type WardSpec struct {
	Validator         string          `yaml:"validator" json:"validator"`
	Mode              WardMode        `yaml:"mode" json:"mode"`
	MaxAttempts       int             `yaml:"max_attempts" json:"max_attempts"`
	OutputSchema      RawValue        `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
	RetryInstructions string          `yaml:"retry_instructions,omitempty" json:"retry_instructions,omitempty"`
}

// Wards groups the pre and post validator lists for a cell.
type Wards struct {
	Pre  []WardSpec `yaml:"pre,omitempty" json:"pre,omitempty"`
	Post []WardSpec `yaml:"post,omitempty" json:"post,omitempty"`
}

// ForEachRowSpec drives a row_mapper cell over a named temp table (§6.1).
type ForEachRowSpec struct {
	Table       string            `yaml:"table" json:"table"`
	Cascade     string            `yaml:"cascade" json:"cascade"`
	Inputs      map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	MaxParallel int               `yaml:"max_parallel" json:"max_parallel"`
	ResultTable string            `yaml:"result_table,omitempty" json:"result_table,omitempty"`
	OnError     OnErrorPolicy     `yaml:"on_error,omitempty" json:"on_error,omitempty"`
}

// Cell is one step of a cascade (§3.2).
type Cell struct {
	Name         string            `yaml:"name" json:"name"`
	Instructions string            `yaml:"instructions" json:"instructions"`
	Inputs       map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs      RawValue          `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Mode         CellMode          `yaml:"mode,omitempty" json:"mode,omitempty"`
	ToolName     string            `yaml:"tool,omitempty" json:"tool,omitempty"` // for CellModeTool

	// Traits lists the tool names available during the cell, or the single
	// sentinel entry "manifest" meaning a quartermaster meta-cell picks the set.
	Traits []string `yaml:"traits,omitempty" json:"traits,omitempty"`

	Candidates *CandidateSpec `yaml:"candidates,omitempty" json:"candidates,omitempty"`
	Reforge    *ReforgeSpec   `yaml:"reforge,omitempty" json:"reforge,omitempty"`
	Wards      Wards          `yaml:"wards,omitempty" json:"wards,omitempty"`

	UseTraining   bool `yaml:"use_training,omitempty" json:"use_training,omitempty"`
	TrainingLimit int  `yaml:"training_limit,omitempty" json:"training_limit,omitempty"`

	// Context lists prior cell names / state.<key> references propagated into
	// this cell. Absent means "clean slate" (spec default).
	Context []string `yaml:"context,omitempty" json:"context,omitempty"`

	MaxTurns int `yaml:"max_turns,omitempty" json:"max_turns,omitempty"`

	ForEachRow *ForEachRowSpec `yaml:"for_each_row,omitempty" json:"for_each_row,omitempty"`
}

// IsManifest reports whether this cell delegates tool selection to the
// quartermaster meta-cell.
func (c Cell) IsManifest() bool {
	return len(c.Traits) == 1 && c.Traits[0] == "manifest"
}

// ContextPolicy is a cascade-wide default for cross-cell propagation.
type ContextPolicy struct {
	Default string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Cascade is the immutable, declaratively-loaded workflow document (§3.1).
// Raw holds the verbatim source bytes as loaded so replay is byte-exact;
// the engine never re-marshals it.
type Cascade struct {
	CascadeID     string                `yaml:"cascade_id" json:"cascade_id"`
	InputsSchema  map[string]InputField `yaml:"inputs_schema,omitempty" json:"inputs_schema,omitempty"`
	Cells         []Cell                `yaml:"cells" json:"cells"`
	Candidates    *CandidateSpec        `yaml:"candidates,omitempty" json:"candidates,omitempty"`
	ToolDirs      []string              `yaml:"tool_dirs,omitempty" json:"tool_dirs,omitempty"`
	ContextPolicy *ContextPolicy        `yaml:"context_policy,omitempty" json:"context_policy,omitempty"`

	// AggregateAlias/AggregateArity declare this cascade as the backing
	// implementation of a SQL aggregate operator (SUMMARIZE, THEMES,
	// CONSENSUS, ...), resolved by internal/sqlrewriter's aggregate-detection
	// phase (§4.11 phase 7). AggregateAlias is empty for ordinary cascades.
	AggregateAlias string `yaml:"aggregate_alias,omitempty" json:"aggregate_alias,omitempty"`
	AggregateArity int    `yaml:"aggregate_arity,omitempty" json:"aggregate_arity,omitempty"`

	Raw []byte `yaml:"-" json:"-"`
}

// CellByName returns the named cell and whether it was found.
func (c Cascade) CellByName(name string) (Cell, bool) {
	for _, cell := range c.Cells {
		if cell.Name == name {
			return cell, true
		}
	}
	return Cell{}, false
}

// Message is one role-tagged entry in a cell's conversation history (§3.3).
type Message struct {
	Role      string          `json:"role"` // user | assistant | tool | system
	Content   string          `json:"content"`
	Images    []string        `json:"images,omitempty"` // on-disk paths
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
	Turn      int             `json:"turn"`
}

// SessionError records one unrecovered error raised within a session (§3.3, §7).
type SessionError struct {
	CellName  string                 `json:"cell_name"`
	ErrorKind string                 `json:"error_kind"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Echo is the runtime state of one cascade invocation (§3.3).
type Echo struct {
	SessionID       string    `json:"session_id"`
	CascadeID       string    `json:"cascade_id"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
	Depth           int       `json:"depth"`
	CreatedAt       time.Time `json:"created_at"`

	CallerID           string          `json:"caller_id"`
	InvocationMetadata json.RawMessage `json:"invocation_metadata,omitempty"`

	State    map[string]json.RawMessage `json:"state"`
	Messages map[string][]Message       `json:"messages"` // keyed by cell name

	Errors []SessionError `json:"errors"`

	CostTotal   float64 `json:"cost_total"`
	TokensTotal int     `json:"tokens_total"`

	Status SessionStatus `json:"status"`

	Cascade Cascade                 `json:"-"` // verbatim definition used for templating/replay
	Inputs  map[string]interface{} `json:"-"`
}

// NewEcho constructs a fresh running session.
func NewEcho(sessionID string, c Cascade, inputs map[string]interface{}) *Echo {
	return &Echo{
		SessionID: sessionID,
		CascadeID: c.CascadeID,
		CreatedAt: time.Now().UTC(),
		State:     map[string]json.RawMessage{},
		Messages:  map[string][]Message{},
		Status:    SessionRunning,
		Cascade:   c,
		Inputs:    inputs,
	}
}

// Candidate is one of N parallel attempts at a cell (§3.4).
type Candidate struct {
	Index         int     `json:"index"`
	ParentCell    string  `json:"parent_cell"`
	Content       string  `json:"content"`
	Winner        bool    `json:"winner"`
	EvalScore     float64 `json:"eval_score,omitempty"`
	EvalRationale string  `json:"eval_rationale,omitempty"`
	Cost          float64 `json:"cost"`
	SessionID     string  `json:"session_id"`
}

// Refinement is one sequential reforge step (§3.4).
type Refinement struct {
	StepIndex     int     `json:"step_index"`
	InputContent  string  `json:"input_content"`
	OutputContent string  `json:"output_content"`
	HoningPrompt  string  `json:"honing_prompt"`
	Cost          float64 `json:"cost"`
}

// CellResult is what a CellExecutor/CandidateLoop/RefinementLoop produces.
type CellResult struct {
	Content   string
	Cost      float64
	TokensIn  int
	TokensOut int
	Images    []string
}

// SessionResult is returned by CascadeRunner.Run.
type SessionResult struct {
	SessionID string
	Status    SessionStatus
	Content   string
	Errors    []SessionError
	CostTotal float64
}

// NodeType enumerates the kinds of event a LogRow can record (§6.2).
type NodeType string

const (
	NodeCascadeStart       NodeType = "cascade_start"
	NodeCascadeComplete    NodeType = "cascade_complete"
	NodeCellStart          NodeType = "cell_start"
	NodeCellComplete       NodeType = "cell_complete"
	NodeAgent              NodeType = "agent"
	NodeToolCall           NodeType = "tool_call"
	NodeToolResult         NodeType = "tool_result"
	NodeFollowUp           NodeType = "follow_up"
	NodeCandidateEvaluated NodeType = "candidate_evaluated"
	NodeWinnerSelected     NodeType = "winner_selected"
	NodeRefinementStep     NodeType = "refinement_step"
	NodeWardCheck          NodeType = "ward_check"
	NodeStateWrite         NodeType = "state_write"
	NodeError              NodeType = "error"
	NodeUser               NodeType = "user"
	NodeSystem             NodeType = "system"
)

// LogRow is one row of the unified, append-only observability/causation
// log (§6.2). Every side effect the engine performs is represented as
// exactly one LogRow; nothing is ever updated after being written, except
// that cost/usage enrichment happens synchronously before the write so no
// separate "cost update" row is ever needed.
type LogRow struct {
	Timestamp    float64 `json:"timestamp"`
	TimestampISO string  `json:"timestamp_iso"`

	SessionID       string `json:"session_id"`
	TraceID         string `json:"trace_id"`
	ParentID        string `json:"parent_id,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	ParentMessageID string `json:"parent_message_id,omitempty"`

	NodeType NodeType      `json:"node_type"`
	Role     string        `json:"role,omitempty"`
	Status   SessionStatus `json:"status,omitempty"`

	Depth           int  `json:"depth"`
	CandidateIndex  *int `json:"candidate_index,omitempty"`
	IsWinner        *bool `json:"is_winner,omitempty"`
	ReforgeStep     *int `json:"reforge_step,omitempty"`
	AttemptNumber   *int `json:"attempt_number,omitempty"`
	TurnNumber      *int `json:"turn_number,omitempty"`

	CascadeID string `json:"cascade_id"`
	CellName  string `json:"cell_name,omitempty"`
	CellJSON  json.RawMessage `json:"cell_json,omitempty"`

	CascadeJSON json.RawMessage `json:"cascade_json,omitempty"`

	Model    string `json:"model,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Provider string `json:"provider,omitempty"`

	DurationMS  int64   `json:"duration_ms,omitempty"`
	TokensIn    int     `json:"tokens_in,omitempty"`
	TokensOut   int     `json:"tokens_out,omitempty"`
	TotalTokens int     `json:"total_tokens,omitempty"`
	Cost        float64 `json:"cost,omitempty"`

	ContentJSON      json.RawMessage `json:"content_json,omitempty"`
	FullRequestJSON  json.RawMessage `json:"full_request_json,omitempty"`
	FullResponseJSON json.RawMessage `json:"full_response_json,omitempty"`
	ToolCallsJSON    json.RawMessage `json:"tool_calls_json,omitempty"`
	ImagesJSON       json.RawMessage `json:"images_json,omitempty"`

	HasImages bool `json:"has_images"`
	HasBase64 bool `json:"has_base64"`

	MetadataJSON json.RawMessage `json:"metadata_json,omitempty"`

	CallerID               string          `json:"caller_id"`
	InvocationMetadataJSON json.RawMessage `json:"invocation_metadata_json,omitempty"`
}

// StateSnapshotRow is a durable snapshot of one SetState call (§6.2).
type StateSnapshotRow struct {
	SessionID string    `json:"session_id"`
	CascadeID string    `json:"cascade_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ValueType string    `json:"value_type"`
	CellName  string    `json:"cell_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CascadeSessionRow is the durable record created when a session starts
// (§6.2), carrying the cascade's verbatim bytes for byte-exact replay.
type CascadeSessionRow struct {
	SessionID              string          `json:"session_id"`
	CascadeID              string          `json:"cascade_id"`
	ParentSessionID        string          `json:"parent_session_id,omitempty"`
	Depth                  int             `json:"depth"`
	CascadeRaw             []byte          `json:"cascade_raw"`
	InputData              json.RawMessage `json:"input_data,omitempty"`
	CallerID               string          `json:"caller_id"`
	InvocationMetadataJSON json.RawMessage `json:"invocation_metadata_json,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
}
