package job

import "time"

// ValidationResult is the outcome of the quality gate
type ValidationResult struct {
	IsValid        bool          `json:"is_valid"`
	QualityScore   float64       `json:"quality_score"`
	Issues         []string      `json:"issues"`
	Warnings       []string      `json:"warnings"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// NewValidationResult builds a result whose IsValid always follows the acceptance
// rule: score at or above the minimum and no blocking issues.
func NewValidationResult(score float64, issues, warnings []string, minScore float64, elapsed time.Duration) *ValidationResult {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if issues == nil {
		issues = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return &ValidationResult{
		IsValid:        score >= minScore && len(issues) == 0,
		QualityScore:   score,
		Issues:         issues,
		Warnings:       warnings,
		ProcessingTime: elapsed,
	}
}

// SnapshotProgress is the progress subset exposed to polling clients
type SnapshotProgress struct {
	CompletedUnits int     `json:"completed_units"`
	TotalUnits     int     `json:"total_units"`
	CurrentStage   Stage   `json:"current_stage"`
	Percent        float64 `json:"percent"`
}

// Snapshot is the status view a polling client depends on
type Snapshot struct {
	JobID        string           `json:"job_id"`
	Status       Status           `json:"status"`
	Progress     SnapshotProgress `json:"progress"`
	Error        string           `json:"error,omitempty"`
	VideoPath    *string          `json:"video_path,omitempty"`
	QualityScore *float64         `json:"quality_score,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Snapshot renders the client view of the job. VideoPath and QualityScore
// are only populated once the job completed.
func (j *Job) Snapshot() *Snapshot {
	s := &Snapshot{
		JobID:  j.ID,
		Status: j.Status,
		Progress: SnapshotProgress{
			CompletedUnits: j.Progress.CompletedUnits,
			TotalUnits:     j.Progress.TotalUnits,
			CurrentStage:   j.Progress.CurrentStage,
			Percent:        j.Progress.Percent,
		},
		Error:     j.Error,
		UpdatedAt: j.UpdatedAt,
	}

	if j.Status == StatusCompleted {
		if video, ok := j.Artifact(StageVideo, JobLevel); ok {
			ref := video.Ref
			s.VideoPath = &ref
		}
		if j.ValidationResult != nil {
			score := j.ValidationResult.QualityScore
			s.QualityScore = &score
		}
	}

	return s
}
