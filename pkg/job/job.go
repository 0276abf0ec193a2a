// Package job defines the generation job model shared by the orchestrator,
// the stores and the client-facing snapshot contract.
package job

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusGenerating Status = "generating"
	StatusComposing  Status = "composing"
	StatusValidating Status = "validating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition can happen
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names one pipeline phase
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageImage      Stage = "image"
	StageAudio      Stage = "audio"
	StageVideo      Stage = "video"
	StageValidation Stage = "validation"
)

// Mode selects the pipeline variant, i.e. which generation backends serve each stage
type Mode string

const (
	ModeTool Mode = "tool"
	ModeVeo  Mode = "veo"
)

// String returns the string representation of Mode
func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a user supplied mode name, empty meaning the default
func ParseMode(s string, fallback Mode) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case string(ModeTool):
		return ModeTool, nil
	case string(ModeVeo):
		return ModeVeo, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, s)
	}
}

// JobLevel is the artifact index used for artifacts that belong to the whole job
const JobLevel = -1

// Sequence is one narrative scene unit
type Sequence struct {
	Index       int      `json:"index" yaml:"index"`
	Text        string   `json:"text" yaml:"text"`
	Summary     string   `json:"summary" yaml:"summary"`
	Characters  []string `json:"characters" yaml:"characters"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	TimePeriod  string   `json:"time_period,omitempty" yaml:"time_period,omitempty"`
	Emotions    []string `json:"emotions" yaml:"emotions"`
	ActionLevel float64  `json:"action_level" yaml:"action_level"`
}

// Artifact is a reference to a produced output, never the bytes themselves
type Artifact struct {
	Stage           Stage     `json:"stage"`
	Index           int       `json:"index"`
	Ref             string    `json:"ref"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	Prompt          string    `json:"prompt,omitempty"`
	Adherence       *float64  `json:"adherence,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// StageCount tracks per-stage progress
type StageCount struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retries   int `json:"retries"`
	Total     int `json:"total"`
}

// Progress is the structured progress view of a job
type Progress struct {
	CompletedUnits int                  `json:"completed_units"`
	TotalUnits     int                  `json:"total_units"`
	CurrentStage   Stage                `json:"current_stage,omitempty"`
	Percent        float64              `json:"percent"`
	Stages         map[Stage]StageCount `json:"stages,omitempty"`
}

// Job is one end-to-end generation request and its tracked lifecycle
type Job struct {
	ID          string `json:"id"`
	Owner       string `json:"owner,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Mode        Mode   `json:"mode"`
	Input       string `json:"input"`
	Status      Status `json:"status"`

	Sequences        []Sequence                 `json:"sequences"`
	Progress         Progress                   `json:"progress"`
	Artifacts        map[Stage]map[int]Artifact `json:"artifacts"`
	ValidationResult *ValidationResult          `json:"validation_result,omitempty"`
	Error            string                     `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending job
func New(id, owner, title, description string, mode Mode, input string, now time.Time) *Job {
	return &Job{
		ID:          id,
		Owner:       owner,
		Title:       title,
		Description: description,
		Mode:        mode,
		Input:       input,
		Status:      StatusPending,
		Artifacts:   make(map[Stage]map[int]Artifact),
		Progress:    Progress{Stages: make(map[Stage]StageCount)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal reports whether the job reached completed or failed
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// PutArtifact stores an artifact, replacing any previous one for the same stage and index
func (j *Job) PutArtifact(a Artifact) {
	if j.Artifacts == nil {
		j.Artifacts = make(map[Stage]map[int]Artifact)
	}
	byIndex, ok := j.Artifacts[a.Stage]
	if !ok {
		byIndex = make(map[int]Artifact)
		j.Artifacts[a.Stage] = byIndex
	}
	byIndex[a.Index] = a
}

// Artifact returns the artifact for a stage and index
func (j *Job) Artifact(stage Stage, index int) (Artifact, bool) {
	a, ok := j.Artifacts[stage][index]
	return a, ok
}

// OrderedArtifacts returns the per-sequence artifacts of a stage sorted by sequence index
func (j *Job) OrderedArtifacts(stage Stage) []Artifact {
	byIndex := j.Artifacts[stage]
	out := make([]Artifact, 0, len(byIndex))
	for _, a := range byIndex {
		if a.Index == JobLevel {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Index < out[k].Index })
	return out
}

// Touch bumps UpdatedAt
func (j *Job) Touch(now time.Time) {
	j.UpdatedAt = now
}

// Clone returns a deep copy safe to hand to other goroutines
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j

	if j.Sequences != nil {
		c.Sequences = make([]Sequence, len(j.Sequences))
		for i, s := range j.Sequences {
			s.Characters = append([]string(nil), s.Characters...)
			s.Emotions = append([]string(nil), s.Emotions...)
			c.Sequences[i] = s
		}
	}

	c.Progress.Stages = make(map[Stage]StageCount, len(j.Progress.Stages))
	for k, v := range j.Progress.Stages {
		c.Progress.Stages[k] = v
	}

	c.Artifacts = make(map[Stage]map[int]Artifact, len(j.Artifacts))
	for stage, byIndex := range j.Artifacts {
		m := make(map[int]Artifact, len(byIndex))
		for idx, a := range byIndex {
			if a.Adherence != nil {
				v := *a.Adherence
				a.Adherence = &v
			}
			m[idx] = a
		}
		c.Artifacts[stage] = m
	}

	if j.ValidationResult != nil {
		vr := *j.ValidationResult
		vr.Issues = append([]string(nil), j.ValidationResult.Issues...)
		vr.Warnings = append([]string(nil), j.ValidationResult.Warnings...)
		c.ValidationResult = &vr
	}

	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}

	return &c
}
