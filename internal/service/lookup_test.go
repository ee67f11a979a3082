package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/gateway"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

func newTestGateway() *gateway.Gateway {
	return gateway.New(gateway.Config{
		FailureThreshold: 3,
	}, zap.NewNop())
}

func TestWeatherCurrentParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Berlin" {
			t.Errorf("expected city Berlin, got %q", got)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("expected metric units, got %q", got)
		}
		w.Write([]byte(`{
			"name": "Berlin",
			"sys": {"country": "DE"},
			"weather": [{"description": "light rain"}],
			"main": {"temp": 14.2, "feels_like": 13.1, "humidity": 81},
			"wind": {"speed": 4.6}
		}`))
	}))
	defer srv.Close()

	svc := NewWeatherService(newTestGateway(), nil, "test-key", zap.NewNop())
	svc.baseURL = srv.URL

	report, err := svc.Current(context.Background(), "Berlin")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if report.City != "Berlin" || report.Country != "DE" {
		t.Fatalf("unexpected location: %q %q", report.City, report.Country)
	}
	if report.Description != "light rain" {
		t.Fatalf("unexpected description %q", report.Description)
	}
	if report.TempC != 14.2 || report.Humidity != 81 {
		t.Fatalf("unexpected readings: %+v", report)
	}
}

func TestWeatherWithoutKeyFailsFast(t *testing.T) {
	svc := NewWeatherService(newTestGateway(), nil, "", zap.NewNop())

	_, err := svc.Current(context.Background(), "Berlin")
	if err == nil {
		t.Fatal("expected an error without an API key")
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeServiceUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %s", pkgerrors.CodeOf(err))
	}
}

func TestDictionaryDefineParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"word": "go",
			"meanings": [
				{"partOfSpeech": "verb", "definitions": [
					{"definition": "To move from one place to another."},
					{"definition": "To leave."}
				]},
				{"partOfSpeech": "noun", "definitions": [
					{"definition": "An attempt."},
					{"definition": "A board game."}
				]}
			]
		}]`))
	}))
	defer srv.Close()

	svc := NewDictionaryService(newTestGateway(), nil, zap.NewNop())
	svc.baseURL = srv.URL

	def, err := svc.Define(context.Background(), "go")
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if def.Term != "go" || def.PartOfSpeech != "verb" {
		t.Fatalf("unexpected entry: %+v", def)
	}
	if len(def.Meanings) != maxMeanings {
		t.Fatalf("expected %d meanings, got %d", maxMeanings, len(def.Meanings))
	}
	if def.Source != "dictionaryapi.dev" {
		t.Fatalf("unexpected source %q", def.Source)
	}
}

func TestDictionaryFallsBackToWiktionary(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer apiSrv.Close()

	wikiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="mw-parser-output">
			<h3>Noun</h3>
			<ol>
				<li>A small test fixture.<dl><dd>example usage</dd></dl></li>
				<li>A second sense.</li>
			</ol>
		</div></body></html>`))
	}))
	defer wikiSrv.Close()

	scraper := NewWiktionaryScraper(zap.NewNop())
	scraper.baseURL = wikiSrv.URL

	svc := NewDictionaryService(newTestGateway(), scraper, zap.NewNop())
	svc.baseURL = apiSrv.URL

	def, err := svc.Define(context.Background(), "widget")
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if def.Source != "wiktionary" {
		t.Fatalf("expected wiktionary fallback, got source %q", def.Source)
	}
	if len(def.Meanings) != 2 {
		t.Fatalf("expected 2 meanings, got %d: %v", len(def.Meanings), def.Meanings)
	}
	if def.Meanings[0] != "A small test fixture." {
		t.Fatalf("example text leaked into meaning: %q", def.Meanings[0])
	}
}

func TestTranslateParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("langpair"); got != "autodetect|de" {
			t.Errorf("unexpected langpair %q", got)
		}
		w.Write([]byte(`{
			"responseData": {"translatedText": "Hallo Welt"},
			"responseStatus": 200
		}`))
	}))
	defer srv.Close()

	svc := NewTranslateService(newTestGateway(), nil, "", zap.NewNop())
	svc.baseURL = srv.URL

	tr, err := svc.Translate(context.Background(), "hello world", "auto", "de")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if tr.Translated != "Hallo Welt" {
		t.Fatalf("unexpected translation %q", tr.Translated)
	}
	if tr.SourceLang != "autodetect" || tr.TargetLang != "de" {
		t.Fatalf("unexpected language pair: %+v", tr)
	}
}

func TestTranslateSurfacesQuotaAsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"responseData": {"translatedText": ""},
			"responseStatus": "429",
			"responseDetails": "YOU USED ALL AVAILABLE FREE TRANSLATIONS FOR TODAY"
		}`))
	}))
	defer srv.Close()

	svc := NewTranslateService(newTestGateway(), nil, "", zap.NewNop())
	svc.baseURL = srv.URL

	_, err := svc.Translate(context.Background(), "hello", "en", "fr")
	if err == nil {
		t.Fatal("expected quota error")
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %s", pkgerrors.CodeOf(err))
	}
}
