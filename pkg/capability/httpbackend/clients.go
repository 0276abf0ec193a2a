package httpbackend

import (
	"context"

	"go.uber.org/zap"

	"media-pipeline-go/pkg/capability"
	"media-pipeline-go/pkg/storage"
	"media-pipeline-go/pkg/utils"
)

// wordsPerSecond approximates narration speed when neither the service nor a prober reports a duration
const wordsPerSecond = 2.5

// ImageClient implements capability.ImageGenerator
type ImageClient struct {
	endpoint *Endpoint
}

// NewImageClient wraps an image endpoint
func NewImageClient(endpoint *Endpoint) *ImageClient {
	return &ImageClient{endpoint: endpoint}
}

type imagePayload struct {
	JobID  string `json:"job_id"`
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// GenerateImage implements capability.ImageGenerator
func (c *ImageClient) GenerateImage(ctx context.Context, req capability.ImageRequest) (*capability.ImageResult, error) {
	resp, obj, err := c.endpoint.generate(ctx, imagePayload{
		JobID:  req.JobID,
		Index:  req.Index,
		Prompt: req.Prompt,
		Style:  req.Style,
		Width:  req.Width,
		Height: req.Height,
	}, req.Key)
	if err != nil {
		return nil, err
	}

	return &capability.ImageResult{
		Key:       obj.Key,
		SizeBytes: obj.Size,
		Adherence: resp.Adherence,
	}, nil
}

// SpeechClient implements capability.SpeechSynthesizer
type SpeechClient struct {
	endpoint *Endpoint
	prober   capability.Prober
}

// NewSpeechClient wraps a speech endpoint. prober may be nil.
func NewSpeechClient(endpoint *Endpoint, prober capability.Prober) *SpeechClient {
	return &SpeechClient{endpoint: endpoint, prober: prober}
}

type speechPayload struct {
	JobID    string `json:"job_id"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

// Synthesize implements capability.SpeechSynthesizer
func (c *SpeechClient) Synthesize(ctx context.Context, req capability.SpeechRequest) (*capability.SpeechResult, error) {
	resp, obj, err := c.endpoint.generate(ctx, speechPayload{
		JobID:    req.JobID,
		Index:    req.Index,
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
	}, req.Key)
	if err != nil {
		return nil, err
	}

	duration := resp.DurationSeconds
	if duration <= 0 && c.prober != nil {
		info, probeErr := c.prober.Probe(ctx, obj.Key)
		if probeErr == nil {
			duration = info.Duration.Seconds()
		} else {
			c.endpoint.logger.Warn("Could not measure narration, estimating",
				zap.String("key", obj.Key), zap.Error(probeErr))
		}
	}
	if duration <= 0 {
		duration = float64(utils.CountWords(req.Text)) / wordsPerSecond
	}

	return &capability.SpeechResult{
		Key:             obj.Key,
		SizeBytes:       obj.Size,
		DurationSeconds: duration,
	}, nil
}

// VideoClient implements capability.VideoComposer with a remote muxing service
type VideoClient struct {
	endpoint *Endpoint
	store    storage.Storage
}

// NewVideoClient wraps a video endpoint. Clip locations are resolved through store.
func NewVideoClient(endpoint *Endpoint, store storage.Storage) *VideoClient {
	return &VideoClient{endpoint: endpoint, store: store}
}

type clipPayload struct {
	Index           int     `json:"index"`
	Image           string  `json:"image"`
	Audio           string  `json:"audio"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type videoPayload struct {
	JobID string        `json:"job_id"`
	Title string        `json:"title,omitempty"`
	Clips []clipPayload `json:"clips"`
}

// Compose implements capability.VideoComposer
func (c *VideoClient) Compose(ctx context.Context, req capability.VideoRequest) (*capability.VideoResult, error) {
	payload := videoPayload{JobID: req.JobID, Title: req.Title}
	total := 0.0
	for _, clip := range req.Clips {
		payload.Clips = append(payload.Clips, clipPayload{
			Index:           clip.Index,
			Image:           c.store.Location(clip.ImageKey),
			Audio:           c.store.Location(clip.AudioKey),
			DurationSeconds: clip.DurationSeconds,
		})
		total += clip.DurationSeconds
	}

	resp, obj, err := c.endpoint.generate(ctx, payload, req.Key)
	if err != nil {
		return nil, err
	}

	duration := resp.DurationSeconds
	if duration <= 0 {
		duration = total
	}

	return &capability.VideoResult{
		Key:             obj.Key,
		SizeBytes:       obj.Size,
		DurationSeconds: duration,
	}, nil
}
