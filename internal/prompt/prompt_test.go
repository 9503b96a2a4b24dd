package prompt

import (
	"strings"
	"testing"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

func TestBuildUploadPrompt(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	p, err := b.Build(Request{
		Query:           "  analyze my stance  ",
		Source:          models.SourceUpload,
		FileName:        "match.mp4",
		DurationSeconds: 10,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	for _, want := range []string{
		"You are Coach David Steele",
		"tough but encouraging",
		"Cary Kolat",
		"stance, takedown entries, finishes, top control, bottom escapes, and the mental game",
	} {
		if !strings.Contains(p.SystemInstruction, want) {
			t.Fatalf("system instruction missing %q:\n%s", want, p.SystemInstruction)
		}
	}
	for _, want := range []string{
		"The user asks: analyze my stance\n",
		"(match.mp4), about 10 seconds long",
		"thorough wrestling technique analysis",
		"Sage Creek wrestler",
	} {
		if !strings.Contains(p.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.Prompt)
		}
	}
	if strings.Contains(p.Prompt, "Reference notes") {
		t.Fatalf("prompt should not mention references without any:\n%s", p.Prompt)
	}
	if strings.Contains(p.Prompt, "\n\n\n") {
		t.Fatalf("prompt has runs of blank lines:\n%q", p.Prompt)
	}
}

func TestBuildYouTubePromptWithReferences(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	p, err := b.Build(Request{
		Query:        "how is my single leg?",
		Source:       models.SourceYouTube,
		VideoURL:     "https://www.youtube.com/watch?v=abc123def45",
		VideoTitle:   "State finals",
		VideoChannel: "Sage Creek Wrestling",
		References: []Reference{
			{Title: "Single leg takedown", URL: "https://example.com/sl", Snippet: "Level change first"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, want := range []string{
		`https://www.youtube.com/watch?v=abc123def45 titled "State finals" from Sage Creek Wrestling`,
		"The user asks: how is my single leg?",
		"- Single leg takedown (https://example.com/sl): Level change first",
		"Cary Kolat-inspired drills",
	} {
		if !strings.Contains(p.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p.Prompt)
		}
	}
}

func TestBuildValidation(t *testing.T) {
	b := NewBuilder(Config{})

	tests := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "", Source: models.SourceUpload}},
		{"whitespace query", Request{Query: " \n\t", Source: models.SourceUpload}},
		{"youtube without url", Request{Query: "takedowns", Source: models.SourceYouTube}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(tt.req)
			if !utils.IsCode(err, utils.CodeInvalidArgument) {
				t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
			}
		})
	}
}

func TestBuildEmptyQueryMessage(t *testing.T) {
	_, err := NewBuilder(DefaultConfig()).Build(Request{Source: models.SourceUpload})
	if got := utils.UserMessage(err); got != "Please provide a question or topic for analysis." {
		t.Fatalf("unexpected user message %q", got)
	}
}

func TestConfigWith(t *testing.T) {
	base := DefaultConfig()

	same := base.With(nil, "")
	if same.DetailLevel != DetailStandard || len(same.FocusAreas) != len(base.FocusAreas) {
		t.Fatalf("empty overrides changed config: %+v", same)
	}

	got := base.With([]string{" Stance ", "stance", "", "hand fighting"}, DetailBrief)
	if got.DetailLevel != DetailBrief {
		t.Fatalf("detail level = %q", got.DetailLevel)
	}
	if strings.Join(got.FocusAreas, "|") != "Stance|hand fighting" {
		t.Fatalf("focus areas = %v", got.FocusAreas)
	}
	if len(base.FocusAreas) != len(DefaultFocusAreas()) {
		t.Fatalf("With mutated the base config")
	}

	p, err := NewBuilder(base).BuildWith(got, Request{Query: "q", Source: models.SourceUpload})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(p.SystemInstruction, "Focus on Stance and hand fighting.") {
		t.Fatalf("system instruction:\n%s", p.SystemInstruction)
	}
	if !strings.Contains(p.Prompt, "three most important fixes") {
		t.Fatalf("brief guidance missing:\n%s", p.Prompt)
	}
}

func TestParseDetailLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    DetailLevel
		wantErr bool
	}{
		{"", "", false},
		{"brief", DetailBrief, false},
		{" THOROUGH ", DetailThorough, false},
		{"standard", DetailStandard, false},
		{"verbose", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDetailLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDetailLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDetailLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	req := Request{Query: "analyze my stance", Source: models.SourceUpload, FileName: "clip.mov"}
	a, _ := b.Build(req)
	c, _ := b.Build(req)
	if a != c {
		t.Fatalf("same request produced different payloads")
	}
}
