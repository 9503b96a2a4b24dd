package youtube

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/yoockh/sagecreek/internal/utils"
)

type Video struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel"`
	Description     string  `json:"description,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

const InvalidURLMessage = "Please enter a valid YouTube video link."

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID accepts watch, short, shorts, embed and live links.
func ParseVideoID(raw string) (string, error) {
	const op = "youtube.ParseVideoID"
	invalid := utils.E(utils.CodeInvalidArgument, op, InvalidURLMessage, nil)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", invalid
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segs[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case segs[0] == "watch":
			id = u.Query().Get("v")
		case len(segs) >= 2 && (segs[0] == "shorts" || segs[0] == "embed" || segs[0] == "live" || segs[0] == "v"):
			id = segs[1]
		}
	}
	if !idPattern.MatchString(id) {
		return "", invalid
	}
	return id, nil
}

func CanonicalURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

type Client struct {
	svc *yt.Service
}

func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// Video looks up metadata for a video link.
func (c *Client) Video(ctx context.Context, rawURL string) (Video, error) {
	const op = "youtube.Client.Video"

	id, err := ParseVideoID(rawURL)
	if err != nil {
		return Video{}, err
	}

	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails"}).Id(id).Context(ctx).Do()
	if err != nil {
		return Video{}, utils.E(utils.CodeUnavailable, op, "failed to fetch video details", err)
	}
	if len(resp.Items) == 0 {
		return Video{}, utils.E(utils.CodeNotFound, op, "The YouTube video could not be found. Check that it is public.", nil)
	}

	item := resp.Items[0]
	v := Video{ID: id, URL: CanonicalURL(id)}
	if item.Snippet != nil {
		v.Title = item.Snippet.Title
		v.Channel = item.Snippet.ChannelTitle
		v.Description = item.Snippet.Description
	}
	if item.ContentDetails != nil {
		v.DurationSeconds = parseISODuration(item.ContentDetails.Duration)
	}
	return v, nil
}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// parseISODuration reads the ISO 8601 durations YouTube reports, e.g. PT1H2M3S.
func parseISODuration(s string) float64 {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	mult := []float64{86400, 3600, 60, 1}
	var total float64
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		total += n * mult[i]
	}
	return total
}
