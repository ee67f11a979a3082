package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/gateway"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

const (
	dictionaryServiceName = "dictionary"
	maxMeanings           = 3
)

// DictionaryService looks up definitions against dictionaryapi.dev
// and falls back to scraping Wiktionary when the API is down. Both
// paths run behind their own circuit breaker, so a broken API does
// not poison the fallback.
type DictionaryService struct {
	gw         *gateway.Gateway
	httpClient *http.Client
	baseURL    string
	fallback   *WiktionaryScraper
	logger     *zap.Logger
}

func NewDictionaryService(gw *gateway.Gateway, fallback *WiktionaryScraper, logger *zap.Logger) *DictionaryService {
	return &DictionaryService{
		gw:         gw,
		httpClient: &http.Client{Timeout: constants.APIConfig.ServiceTimeout},
		baseURL:    constants.APIConfig.DictionaryBaseURL,
		fallback:   fallback,
		logger:     logger,
	}
}

func (s *DictionaryService) Define(ctx context.Context, term string) (*domain.Definition, error) {
	result, err := s.gw.Execute(ctx, gateway.Call{
		Service:   dictionaryServiceName,
		Operation: "define",
		Retryable: true,
		Invoke: func(callCtx context.Context) (any, error) {
			return s.fetchDefinition(callCtx, term)
		},
	})
	if err == nil {
		return result.(*domain.Definition), nil
	}

	if s.fallback == nil {
		return nil, err
	}

	s.logger.Warn("Dictionary API failed, trying Wiktionary fallback",
		zap.String("term", term),
		zap.String("code", errors.CodeOf(err)),
	)

	fallbackResult, fallbackErr := s.gw.Execute(ctx, gateway.Call{
		Service:   "wiktionary",
		Operation: "define",
		Retryable: true,
		Invoke: func(callCtx context.Context) (any, error) {
			return s.fallback.Lookup(callCtx, term)
		},
	})
	if fallbackErr != nil {
		s.logger.Warn("Wiktionary fallback failed too",
			zap.String("term", term),
			zap.Error(fallbackErr),
		)
		return nil, err
	}
	return fallbackResult.(*domain.Definition), nil
}

func (s *DictionaryService) fetchDefinition(ctx context.Context, term string) (*domain.Definition, error) {
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(s.baseURL, "/"), url.PathEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to build dictionary request", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "dictionary request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(dictionaryServiceName, resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	var entries []struct {
		Word     string `json:"word"`
		Meanings []struct {
			PartOfSpeech string `json:"partOfSpeech"`
			Definitions  []struct {
				Definition string `json:"definition"`
			} `json:"definitions"`
		} `json:"meanings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to decode dictionary response", err)
	}
	if len(entries) == 0 || len(entries[0].Meanings) == 0 {
		return nil, errors.New(errors.CodeUpstreamError, fmt.Sprintf("no definitions for %q", term))
	}

	entry := entries[0]
	def := &domain.Definition{
		Term:         entry.Word,
		PartOfSpeech: entry.Meanings[0].PartOfSpeech,
		Source:       "dictionaryapi.dev",
	}
	if def.Term == "" {
		def.Term = term
	}
	for _, meaning := range entry.Meanings {
		for _, d := range meaning.Definitions {
			text := strings.TrimSpace(d.Definition)
			if text == "" {
				continue
			}
			def.Meanings = append(def.Meanings, text)
			if len(def.Meanings) == maxMeanings {
				return def, nil
			}
		}
	}
	if len(def.Meanings) == 0 {
		return nil, errors.New(errors.CodeUpstreamError, fmt.Sprintf("no definitions for %q", term))
	}
	return def, nil
}
