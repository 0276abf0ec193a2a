package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/storage"
	"media-pipeline-go/pkg/utils"
)

// Artifact folders under the job prefix
const (
	imageFolder = "images"
	audioFolder = "audio"
	videoFolder = "video"

	imageExt       = ".png"
	audioExt       = ".mp3"
	finalVideoName = "final.mp4"

	maxNarrationChars = 500
	maxPromptAction   = 160
)

// StageInputs carries what a stage worker consumes. Per-sequence stages read
// Sequence; the video stage reads the ordered Images and Audio.
type StageInputs struct {
	Title    string
	Sequence *job.Sequence
	Images   []job.Artifact
	Audio    []job.Artifact
}

// StageWorker produces the artifact of one stage. index is nil for job level stages.
// Calling Run again with the same inputs overwrites the previous artifact.
type StageWorker interface {
	Stage() job.Stage
	Run(ctx context.Context, jobID string, index *int, in StageInputs) (job.Artifact, error)
}

// stageWorkers is the worker set bound to a job by its mode strategy
type stageWorkers struct {
	image StageWorker
	audio StageWorker
	video StageWorker
}

func newStageWorkers(s *capability.Strategy, now func() time.Time) stageWorkers {
	return stageWorkers{
		image: &ImageWorker{strategy: s, now: now},
		audio: &AudioWorker{strategy: s, now: now},
		video: &VideoWorker{strategy: s, now: now},
	}
}

func (w stageWorkers) forStage(stage job.Stage) StageWorker {
	if stage == job.StageImage {
		return w.image
	}
	return w.audio
}

func requireSequence(stage job.Stage, index *int, in StageInputs) (int, error) {
	if index == nil {
		return 0, job.Permanent(string(stage), errors.New("sequence index is required"))
	}
	if in.Sequence == nil || in.Sequence.Index != *index {
		return 0, job.Permanent(string(stage), fmt.Errorf("no sequence %d in inputs", *index))
	}
	return *index, nil
}

// ImageWorker illustrates one sequence
type ImageWorker struct {
	strategy *capability.Strategy
	now      func() time.Time
}

// Stage implements StageWorker
func (w *ImageWorker) Stage() job.Stage { return job.StageImage }

// Run implements StageWorker
func (w *ImageWorker) Run(ctx context.Context, jobID string, index *int, in StageInputs) (job.Artifact, error) {
	idx, err := requireSequence(job.StageImage, index, in)
	if err != nil {
		return job.Artifact{}, err
	}

	prompt := BuildImagePrompt(*in.Sequence, w.strategy.ImageStyle)
	res, err := w.strategy.Images.GenerateImage(ctx, capability.ImageRequest{
		JobID:  jobID,
		Index:  idx,
		Prompt: prompt,
		Style:  w.strategy.ImageStyle,
		Width:  w.strategy.Width,
		Height: w.strategy.Height,
		Key:    storage.ArtifactKey(jobID, imageFolder, idx, imageExt),
	})
	if err != nil {
		return job.Artifact{}, err
	}

	return job.Artifact{
		Stage:     job.StageImage,
		Index:     idx,
		Ref:       res.Key,
		SizeBytes: res.SizeBytes,
		Prompt:    prompt,
		Adherence: res.Adherence,
		CreatedAt: w.now(),
	}, nil
}

// AudioWorker narrates one sequence
type AudioWorker struct {
	strategy *capability.Strategy
	now      func() time.Time
}

// Stage implements StageWorker
func (w *AudioWorker) Stage() job.Stage { return job.StageAudio }

// Run implements StageWorker
func (w *AudioWorker) Run(ctx context.Context, jobID string, index *int, in StageInputs) (job.Artifact, error) {
	idx, err := requireSequence(job.StageAudio, index, in)
	if err != nil {
		return job.Artifact{}, err
	}

	text := BuildNarration(*in.Sequence)
	if text == "" {
		return job.Artifact{}, job.Permanent("audio", fmt.Errorf("sequence %d has nothing to narrate", idx))
	}

	res, err := w.strategy.Speech.Synthesize(ctx, capability.SpeechRequest{
		JobID:    jobID,
		Index:    idx,
		Text:     text,
		Language: w.strategy.Language,
		Voice:    w.strategy.Voice,
		Key:      storage.ArtifactKey(jobID, audioFolder, idx, audioExt),
	})
	if err != nil {
		return job.Artifact{}, err
	}

	return job.Artifact{
		Stage:           job.StageAudio,
		Index:           idx,
		Ref:             res.Key,
		DurationSeconds: res.DurationSeconds,
		SizeBytes:       res.SizeBytes,
		CreatedAt:       w.now(),
	}, nil
}

// VideoWorker composes the final video from every sequence's image and narration
type VideoWorker struct {
	strategy *capability.Strategy
	now      func() time.Time
}

// Stage implements StageWorker
func (w *VideoWorker) Stage() job.Stage { return job.StageVideo }

// Run implements StageWorker
func (w *VideoWorker) Run(ctx context.Context, jobID string, index *int, in StageInputs) (job.Artifact, error) {
	if index != nil {
		return job.Artifact{}, job.Permanent("video", errors.New("video stage takes no sequence index"))
	}
	if len(in.Images) == 0 || len(in.Images) != len(in.Audio) {
		return job.Artifact{}, job.Permanent("video",
			fmt.Errorf("need one image and one narration per sequence, got %d and %d", len(in.Images), len(in.Audio)))
	}

	clips := make([]capability.Clip, len(in.Images))
	for i := range in.Images {
		if in.Images[i].Index != in.Audio[i].Index {
			return job.Artifact{}, job.Permanent("video",
				fmt.Errorf("clip %d pairs image %d with narration %d", i, in.Images[i].Index, in.Audio[i].Index))
		}
		clips[i] = capability.Clip{
			Index:           in.Images[i].Index,
			ImageKey:        in.Images[i].Ref,
			AudioKey:        in.Audio[i].Ref,
			DurationSeconds: in.Audio[i].DurationSeconds,
		}
	}

	res, err := w.strategy.Video.Compose(ctx, capability.VideoRequest{
		JobID: jobID,
		Title: in.Title,
		Clips: clips,
		Key:   storage.JobArtifactKey(jobID, videoFolder, finalVideoName),
	})
	if err != nil {
		return job.Artifact{}, err
	}

	return job.Artifact{
		Stage:           job.StageVideo,
		Index:           job.JobLevel,
		Ref:             res.Key,
		DurationSeconds: res.DurationSeconds,
		SizeBytes:       res.SizeBytes,
		CreatedAt:       w.now(),
	}, nil
}

// BuildImagePrompt describes a sequence as "<characters> in <location>, <action>, <mood> mood"
// followed by the time period and the mode style when present.
func BuildImagePrompt(seq job.Sequence, style string) string {
	who := "A lone figure"
	if len(seq.Characters) > 0 {
		who = strings.Join(seq.Characters, " and ")
	}

	where := "an evocative setting"
	if seq.Location != "" {
		where = seq.Location
	}

	action := strings.TrimRight(utils.TruncateRunes(utils.CollapseWhitespace(seq.Summary), maxPromptAction), ".!?;: ")
	if action == "" {
		action = describeAction(seq.ActionLevel)
	}

	mood := "neutral"
	if len(seq.Emotions) > 0 {
		mood = strings.Join(seq.Emotions, " and ")
	}

	parts := []string{fmt.Sprintf("%s in %s, %s, %s mood", who, where, action, mood)}
	if seq.TimePeriod != "" {
		parts = append(parts, seq.TimePeriod)
	}
	if style != "" {
		parts = append(parts, style+" style")
	}
	return strings.Join(parts, ", ")
}

func describeAction(level float64) string {
	switch {
	case level >= 0.6:
		return "caught in intense action"
	case level >= 0.3:
		return "in motion"
	default:
		return "in a quiet moment"
	}
}

var (
	repeatedDots  = regexp.MustCompile(`\.{2,}|…`)
	repeatedBangs = regexp.MustCompile(`!{2,}`)
	repeatedQuery = regexp.MustCompile(`\?{2,}`)
	sentenceEnd   = regexp.MustCompile(`[^.!?]+[.!?]*`)
	dashReplacer  = strings.NewReplacer("—", "-", "–", "-", `"`, "", "“", "", "”", "", "«", "", "»", "")
)

// BuildNarration prepares the text a speech backend reads for a sequence,
// falling back to the summary when the sequence has no text. Long text is cut
// at a sentence boundary.
func BuildNarration(seq job.Sequence) string {
	text := utils.CollapseWhitespace(seq.Text)
	if text == "" {
		text = utils.CollapseWhitespace(seq.Summary)
	}
	if text == "" {
		return ""
	}

	text = repeatedDots.ReplaceAllString(text, ".")
	text = repeatedBangs.ReplaceAllString(text, "!")
	text = repeatedQuery.ReplaceAllString(text, "?")
	text = strings.TrimSpace(dashReplacer.Replace(text))

	if len([]rune(text)) > maxNarrationChars {
		var b strings.Builder
		for _, sentence := range sentenceEnd.FindAllString(text, -1) {
			if b.Len() > 0 && len([]rune(b.String()+sentence)) > maxNarrationChars {
				break
			}
			b.WriteString(sentence)
		}
		text = strings.TrimSpace(b.String())
		if len([]rune(text)) > maxNarrationChars {
			text = strings.TrimSpace(string([]rune(text)[:maxNarrationChars]))
		}
	}

	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		text += "."
	}
	return text
}
