package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MediaInfo is the subset of ffprobe output the pipeline relies on
type MediaInfo struct {
	Filename   string        `json:"filename"`
	Format     string        `json:"format"`
	Duration   time.Duration `json:"duration"`
	Size       int64         `json:"size"`
	Bitrate    int64         `json:"bitrate"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frame_rate"`
	VideoCodec string        `json:"video_codec"`
	AudioCodec string        `json:"audio_codec"`
	SampleRate int           `json:"sample_rate"`
}

// HasVideo reports whether a video stream was found
func (m *MediaInfo) HasVideo() bool {
	return m.VideoCodec != "" && m.Width > 0 && m.Height > 0
}

// probeStream represents a stream from ffprobe output
type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
}

// probeFormat represents format information from ffprobe
type probeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Prober inspects media files with ffprobe
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	runner      Runner
	logger      *zap.Logger
}

// NewProber creates a prober. An empty path means ffprobe from PATH.
func NewProber(ffprobePath string, timeout time.Duration, runner Runner, logger *zap.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     timeout,
		runner:      runner,
		logger:      logger,
	}
}

// Probe reads container and stream metadata of a local file
func (p *Prober) Probe(ctx context.Context, filePath string) (*MediaInfo, error) {
	p.logger.Debug("Probing media file", zap.String("file", filePath))

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.runner.Run(timeoutCtx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", filePath, err)
	}

	info, err := ParseProbeOutput(out)
	if err != nil {
		return nil, err
	}
	if info.Filename == "" {
		info.Filename = filePath
	}

	p.logger.Debug("Probe complete",
		zap.String("file", filePath),
		zap.Duration("duration", info.Duration),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height))

	return info, nil
}

// ParseProbeOutput converts ffprobe JSON into MediaInfo
func ParseProbeOutput(data []byte) (*MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		Filename: probe.Format.Filename,
		Format:   probe.Format.FormatName,
	}

	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(d * float64(time.Second))
	}
	if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
		info.Size = size
	}
	if bitrate, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = bitrate
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			// cover art in audio files shows up as a video stream, keep the first one
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			info.FrameRate = parseFrameRate(stream.AvgFrameRate)
		case "audio":
			if info.AudioCodec != "" {
				continue
			}
			info.AudioCodec = stream.CodecName
			if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
				info.SampleRate = rate
			}
		}
	}

	return info, nil
}

// parseFrameRate parses frame rate from ffprobe format (e.g., "30/1", "29.97")
func parseFrameRate(frameRateStr string) float64 {
	if num, den, ok := strings.Cut(frameRateStr, "/"); ok {
		numerator, err1 := strconv.ParseFloat(num, 64)
		denominator, err2 := strconv.ParseFloat(den, 64)
		if err1 == nil && err2 == nil && denominator != 0 {
			return numerator / denominator
		}
		return 0
	}
	if frameRate, err := strconv.ParseFloat(frameRateStr, 64); err == nil {
		return frameRate
	}
	return 0
}
