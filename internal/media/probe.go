package media

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/yoockh/sagecreek/internal/utils"
)

type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
	Format          string
}

const defaultProbeTimeout = 30 * time.Second

var probeRunner = ffmpeg.ProbeWithTimeout

// Probe runs ffprobe on path. The context deadline, when set, bounds the run.
func Probe(ctx context.Context, path string) (Info, error) {
	const op = "media.Probe"

	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	timeout := defaultProbeTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return Info{}, context.DeadlineExceeded
	}

	raw, err := probeRunner(path, timeout, ffmpeg.KwArgs{})
	if errors.Is(err, exec.ErrNotFound) {
		return Info{}, utils.E(utils.CodeUnavailable, op, "ffprobe is not installed", err)
	}
	if err != nil {
		return Info{}, utils.E(utils.CodeUnsupportedMedia, op, "The video could not be read. Try a different file.", err)
	}
	info, err := ParseProbe(raw)
	if err != nil {
		return Info{}, utils.E(utils.CodeUnsupportedMedia, op, "The video could not be read. Try a different file.", err)
	}
	return info, nil
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ParseProbe reads ffprobe's JSON (-show_format -show_streams).
func ParseProbe(raw string) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Info{}, err
	}

	info := Info{Format: out.Format.FormatName}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)

	hasVideo := false
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		hasVideo = true
		info.Codec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		if info.DurationSeconds == 0 {
			info.DurationSeconds, _ = strconv.ParseFloat(s.Duration, 64)
		}
		break
	}
	if !hasVideo {
		return Info{}, utils.E(utils.CodeUnsupportedMedia, "media.ParseProbe", "file has no video stream", nil)
	}
	return info, nil
}
