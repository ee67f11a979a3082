package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

// WiktionaryScraper is the degraded path for definitions: it parses
// the English Wiktionary entry page directly. Markup drift is
// reported as an upstream error so the gateway counts it against the
// wiktionary breaker, not the dictionary one.
type WiktionaryScraper struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func NewWiktionaryScraper(logger *zap.Logger) *WiktionaryScraper {
	return &WiktionaryScraper{
		httpClient: &http.Client{Timeout: constants.APIConfig.ServiceTimeout},
		baseURL:    constants.APIConfig.WiktionaryBaseURL,
		logger:     logger,
	}
}

func (s *WiktionaryScraper) Lookup(ctx context.Context, term string) (*domain.Definition, error) {
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(s.baseURL, "/"), url.PathEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to build wiktionary request", err)
	}
	req.Header.Set("User-Agent", "groupwarden-bot/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "wiktionary request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus("wiktionary", resp.StatusCode); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to parse wiktionary page", err)
	}

	def := &domain.Definition{
		Term:   term,
		Source: "wiktionary",
	}

	// Definition lists on entry pages are ordered lists directly
	// under the content body. The first list belongs to the first
	// part of speech, which is all the bot shows.
	doc.Find("div.mw-parser-output > ol").EachWithBreak(func(_ int, list *goquery.Selection) bool {
		if heading := list.PrevAllFiltered("h3, h4").First(); heading.Length() > 0 {
			def.PartOfSpeech = strings.ToLower(strings.TrimSpace(heading.Text()))
		}
		list.ChildrenFiltered("li").EachWithBreak(func(_ int, item *goquery.Selection) bool {
			// Usage examples and quotations nest below the sense
			// line; drop them before reading the text.
			item.Find("dl, ul, div.citation-whole").Remove()
			text := strings.TrimSpace(item.Text())
			if text != "" {
				def.Meanings = append(def.Meanings, text)
			}
			return len(def.Meanings) < maxMeanings
		})
		return false
	})

	if len(def.Meanings) == 0 {
		s.logger.Warn("Wiktionary page yielded no definitions, markup may have changed",
			zap.String("term", term),
		)
		return nil, errors.New(errors.CodeUpstreamError, fmt.Sprintf("no wiktionary definitions for %q", term))
	}
	return def, nil
}
