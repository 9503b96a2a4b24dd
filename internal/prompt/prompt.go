// Package prompt turns a coaching configuration and a user question into the
// system instruction and prompt text sent to the model.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailStandard DetailLevel = "standard"
	DetailThorough DetailLevel = "thorough"
)

func ParseDetailLevel(s string) (DetailLevel, error) {
	switch DetailLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case DetailBrief:
		return DetailBrief, nil
	case DetailStandard:
		return DetailStandard, nil
	case DetailThorough:
		return DetailThorough, nil
	default:
		return "", utils.E(utils.CodeInvalidArgument, "prompt.ParseDetailLevel", "detail_level must be brief, standard or thorough", nil)
	}
}

type Persona struct {
	Name       string
	Role       string
	Style      string
	Philosophy string
	Closing    string
}

func DefaultPersona() Persona {
	return Persona{
		Name:       "Coach David Steele",
		Role:       "wrestling coach at Sage Creek High School",
		Style:      "tough but encouraging",
		Philosophy: "Cary Kolat",
		Closing:    "End with an encouraging challenge for a Sage Creek wrestler.",
	}
}

func DefaultFocusAreas() []string {
	return []string{
		"stance",
		"takedown entries",
		"finishes",
		"top control",
		"bottom escapes",
		"the mental game",
	}
}

type Config struct {
	Persona     Persona
	FocusAreas  []string
	DetailLevel DetailLevel
}

func DefaultConfig() Config {
	return Config{
		Persona:     DefaultPersona(),
		FocusAreas:  DefaultFocusAreas(),
		DetailLevel: DetailStandard,
	}
}

// With returns a copy with per-request overrides applied; empty overrides keep the base.
func (c Config) With(focusAreas []string, level DetailLevel) Config {
	out := c
	if cleaned := cleanList(focusAreas); len(cleaned) > 0 {
		out.FocusAreas = cleaned
	}
	if level != "" {
		out.DetailLevel = level
	}
	return out
}

// Reference is supporting material found outside the video (web search results).
type Reference struct {
	Title   string
	URL     string
	Snippet string
}

type Request struct {
	Query  string
	Source models.VideoSource

	VideoURL        string
	VideoTitle      string
	VideoChannel    string
	FileName        string
	DurationSeconds float64

	References []Reference
}

type Payload struct {
	SystemInstruction string
	Prompt            string
}

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.Persona.Name == "" {
		cfg.Persona = DefaultPersona()
	}
	if len(cleanList(cfg.FocusAreas)) == 0 {
		cfg.FocusAreas = DefaultFocusAreas()
	}
	if cfg.DetailLevel == "" {
		cfg.DetailLevel = DetailStandard
	}
	return &Builder{cfg: cfg}
}

func (b *Builder) Config() Config { return b.cfg }

func (b *Builder) Build(req Request) (Payload, error) {
	return b.BuildWith(b.cfg, req)
}

// BuildWith renders req against cfg instead of the builder's base configuration.
func (b *Builder) BuildWith(cfg Config, req Request) (Payload, error) {
	const op = "prompt.Build"

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Payload{}, utils.E(utils.CodeInvalidArgument, op, "Please provide a question or topic for analysis.", nil)
	}
	if req.Source == models.SourceYouTube && strings.TrimSpace(req.VideoURL) == "" {
		return Payload{}, utils.E(utils.CodeInvalidArgument, op, "video URL is required for link analyses", nil)
	}

	data := templateData{
		Config:  cfg,
		Request: req,
		Focus:   joinHuman(cfg.FocusAreas),
		Detail:  detailPhrases[cfg.DetailLevel],
	}
	if data.Detail.Adjective == "" {
		data.Detail = detailPhrases[DetailStandard]
	}

	system, err := execute(systemTmpl, data)
	if err != nil {
		return Payload{}, utils.E(utils.CodeInternal, op, "failed to render system instruction", err)
	}

	tmpl := uploadTmpl
	if req.Source == models.SourceYouTube {
		tmpl = youtubeTmpl
	}
	body, err := execute(tmpl, data)
	if err != nil {
		return Payload{}, utils.E(utils.CodeInternal, op, "failed to render prompt", err)
	}

	return Payload{SystemInstruction: system, Prompt: body}, nil
}

type detailPhrase struct {
	Adjective string
	Article   string
	Guidance  string
}

var detailPhrases = map[DetailLevel]detailPhrase{
	DetailBrief: {
		Adjective: "concise",
		Article:   "a",
		Guidance:  "Keep it short: the three most important fixes, one drill each.",
	},
	DetailStandard: {
		Adjective: "thorough",
		Article:   "a",
		Guidance:  "Cover the key technique diagnoses, recommended drills, and mindset tips.",
	},
	DetailThorough: {
		Adjective: "in-depth, step-by-step",
		Article:   "an",
		Guidance:  "Walk through every exchange you can see, with a diagnosis, a correction, and a drill for each.",
	},
}

type templateData struct {
	Config  Config
	Request Request
	Focus   string
	Detail  detailPhrase
}

func execute(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(collapseBlankLines(buf.String())), nil
}

var funcs = template.FuncMap{
	"seconds": func(f float64) string { return fmt.Sprintf("%.0f", f) },
}

var systemTmpl = template.Must(template.New("system").Funcs(funcs).Parse(`
You are {{.Config.Persona.Name}}, {{.Config.Persona.Role}}.
Your style is {{.Config.Persona.Style}}{{with .Config.Persona.Philosophy}}, referencing {{.}}'s philosophy{{end}}.
Provide {{.Detail.Adjective}} wrestling technique analysis, with direct and actionable drills.
Focus on {{.Focus}}.
Format your answer as markdown with short sections and bullet points.
`))

var uploadTmpl = template.Must(template.New("upload").Funcs(funcs).Parse(`
You have a wrestling video uploaded for analysis{{with .Request.FileName}} ({{.}}){{end}}{{if gt .Request.DurationSeconds 0.0}}, about {{seconds .Request.DurationSeconds}} seconds long{{end}}.
The user asks: {{.Request.Query}}
{{template "references" .}}
Provide {{.Detail.Article}} {{.Detail.Adjective}} wrestling technique analysis{{with .Config.Persona.Philosophy}}, referencing {{.}} fundamentals{{end}} and real wrestling knowledge.
{{.Detail.Guidance}}
Answer in {{.Config.Persona.Name}}'s style.
{{.Config.Persona.Closing}}
{{define "references"}}{{if .Request.References}}
Reference notes from a web search. Use them only where they help:
{{range .Request.References}}- {{.Title}}{{with .URL}} ({{.}}){{end}}{{with .Snippet}}: {{.}}{{end}}
{{end}}{{end}}{{end}}
`))

var youtubeTmpl = template.Must(template.New("youtube").Funcs(funcs).Parse(`
You're analyzing a wrestling video from YouTube at {{.Request.VideoURL}}{{with .Request.VideoTitle}} titled "{{.}}"{{end}}{{with .Request.VideoChannel}} from {{.}}{{end}}.
The user asks: {{.Request.Query}}
{{template "references" .}}
Provide {{.Detail.Article}} {{.Detail.Adjective}} wrestling technique analysis, referencing the video's content and additional web knowledge if needed.
{{.Detail.Guidance}}
Focus on critical improvements{{with .Config.Persona.Philosophy}}, {{.}}-inspired drills{{end}}, and {{.Config.Persona.Name}}'s toughness.
{{.Config.Persona.Closing}}
{{define "references"}}{{if .Request.References}}
Reference notes from a web search. Use them only where they help:
{{range .Request.References}}- {{.Title}}{{with .URL}} ({{.}}){{end}}{{with .Snippet}}: {{.}}{{end}}
{{end}}{{end}}{{end}}
`))

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func joinHuman(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
