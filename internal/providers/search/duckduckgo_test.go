package search

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yoockh/sagecreek/internal/utils"
)

const instantAnswerJSON = `{
  "Heading": "Single leg takedown",
  "AbstractText": "A single leg takedown is a wrestling move.",
  "AbstractURL": "https://en.wikipedia.org/wiki/Single_leg_takedown",
  "AbstractSource": "Wikipedia",
  "RelatedTopics": [
    {"Text": "Double leg takedown - A takedown attacking both legs.", "FirstURL": "https://duckduckgo.com/Double_leg"},
    {"Name": "Counters", "Topics": [
      {"Text": "Sprawl - Defensive technique against leg attacks.", "FirstURL": "https://duckduckgo.com/Sprawl"},
      {"Text": "Whizzer", "FirstURL": "https://duckduckgo.com/Whizzer"}
    ]}
  ]
}`

func TestDuckDuckGoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "single leg finish" {
			t.Errorf("q = %q", got)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format not json")
		}
		_, _ = io.WriteString(w, instantAnswerJSON)
	}))
	defer srv.Close()

	d := NewDuckDuckGo(WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	res, err := d.Search(context.Background(), " single leg finish ", 3)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("len = %d: %+v", len(res), res)
	}
	if res[0].Title != "Single leg takedown (Wikipedia)" || res[0].URL == "" {
		t.Fatalf("abstract result = %+v", res[0])
	}
	if res[1].Title != "Double leg takedown" || res[1].Snippet != "A takedown attacking both legs." {
		t.Fatalf("topic result = %+v", res[1])
	}
	if res[2].Title != "Sprawl" {
		t.Fatalf("nested topic result = %+v", res[2])
	}
}

func TestDuckDuckGoErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDuckDuckGo(WithBaseURL(srv.URL + "/"))
	if _, err := d.Search(context.Background(), "sprawl", 3); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
	if _, err := d.Search(context.Background(), "  ", 3); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestResultsEmptyAnswer(t *testing.T) {
	if got := (instantAnswer{}).results(5); len(got) != 0 {
		t.Fatalf("expected no results, got %+v", got)
	}
}
