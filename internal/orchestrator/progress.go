package orchestrator

import (
	"math"

	"media-pipeline-go/pkg/job"
)

// Progress units: one per image, one per narration, one for the video and one
// for validation. Extraction counts as a unit of the percent denominator only.
func lifetimeUnits(sequences int) int {
	return 2*sequences + 3
}

func beginGeneration(j *job.Job) {
	n := len(j.Sequences)
	j.Status = job.StatusGenerating
	j.Progress.TotalUnits = 2 * n
	j.Progress.CurrentStage = job.StageImage
	j.Progress.Stages[job.StageExtraction] = job.StageCount{Completed: 1, Total: 1}
	j.Progress.Stages[job.StageImage] = job.StageCount{Total: n}
	j.Progress.Stages[job.StageAudio] = job.StageCount{Total: n}
}

// enterStage moves the job into composing or validating and grows total_units
// by the unit of that stage.
func enterStage(j *job.Job, status job.Status, stage job.Stage) {
	j.Status = status
	j.Progress.CurrentStage = stage
	j.Progress.TotalUnits = 2*len(j.Sequences) + 1
	if stage == job.StageValidation {
		j.Progress.TotalUnits++
	}
	count := j.Progress.Stages[stage]
	count.Total = 1
	j.Progress.Stages[stage] = count
}

func recordSuccess(j *job.Job, stage job.Stage) {
	count := j.Progress.Stages[stage]
	count.Completed++
	j.Progress.Stages[stage] = count
	j.Progress.CompletedUnits++

	if stage == job.StageImage && count.Completed == count.Total && j.Progress.CurrentStage == job.StageImage {
		j.Progress.CurrentStage = job.StageAudio
	}
}

func recordFailure(j *job.Job, stage job.Stage) {
	count := j.Progress.Stages[stage]
	count.Failed++
	j.Progress.Stages[stage] = count
}

func recordRetry(j *job.Job, stage job.Stage) {
	count := j.Progress.Stages[stage]
	count.Retries++
	j.Progress.Stages[stage] = count
}

// updatePercent recomputes percent against the fixed lifetime denominator.
// It never moves backwards.
func updatePercent(j *job.Job) {
	if j.Status == job.StatusCompleted {
		j.Progress.Percent = 100
		return
	}
	if len(j.Sequences) == 0 {
		return
	}

	done := j.Progress.CompletedUnits
	if j.Progress.Stages[job.StageExtraction].Completed > 0 {
		done++
	}
	percent := math.Round(float64(done)/float64(lifetimeUnits(len(j.Sequences)))*10000) / 100
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress.Percent {
		j.Progress.Percent = percent
	}
}
