package service

import (
	"context"
	"crypto/sha1"
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
	"github.com/kavik/groupwarden-go/internal/service/cache"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

const translateServiceName = "translate"

// TranslateService translates text through the free MyMemory API.
// Repeated phrase lookups are cached; the contact email, when
// configured, raises MyMemory's daily quota.
type TranslateService struct {
	gw         *gateway.Gateway
	cache      *cache.CacheService
	httpClient *http.Client
	baseURL    string
	email      string
	logger     *zap.Logger
}

func NewTranslateService(gw *gateway.Gateway, cacheSvc *cache.CacheService, contactEmail string, logger *zap.Logger) *TranslateService {
	return &TranslateService{
		gw:         gw,
		cache:      cacheSvc,
		httpClient: &http.Client{Timeout: constants.APIConfig.ServiceTimeout},
		baseURL:    constants.APIConfig.TranslateBaseURL,
		email:      contactEmail,
		logger:     logger,
	}
}

func (s *TranslateService) Translate(ctx context.Context, text, source, target string) (*domain.Translation, error) {
	if source == "" || source == "auto" {
		// MyMemory's autodetect pair.
		source = "autodetect"
	}

	cacheKey := translationCacheKey(text, source, target)
	if s.cache != nil {
		var cached domain.Translation
		if exists, err := s.cache.Exists(ctx, cacheKey); err == nil && exists {
			if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
				s.logger.Debug("Translation cache hit", zap.String("target", target))
				return &cached, nil
			}
		}
	}

	result, err := s.gw.Execute(ctx, gateway.Call{
		Service:   translateServiceName,
		Operation: "translate",
		Retryable: true,
		Invoke: func(callCtx context.Context) (any, error) {
			return s.fetchTranslation(callCtx, text, source, target)
		},
	})
	if err != nil {
		return nil, err
	}

	tr := result.(*domain.Translation)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, tr, constants.CacheTTL.Translation); err != nil {
			s.logger.Warn("Translation cache write failed", zap.Error(err))
		}
	}
	return tr, nil
}

func (s *TranslateService) fetchTranslation(ctx context.Context, text, source, target string) (*domain.Translation, error) {
	params := url.Values{}
	params.Set("q", text)
	params.Set("langpair", fmt.Sprintf("%s|%s", source, target))
	if s.email != "" {
		params.Set("de", s.email)
	}

	endpoint := fmt.Sprintf("%s/get?%s", strings.TrimRight(s.baseURL, "/"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to build translate request", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "translate request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(translateServiceName, resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	var payload struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus  json.Number `json:"responseStatus"`
		ResponseDetails string      `json:"responseDetails"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to decode translate response", err)
	}

	// MyMemory tunnels its real status through the body; the HTTP
	// status is 200 even for quota errors.
	if status, err := payload.ResponseStatus.Int64(); err == nil && status != 0 && status != http.StatusOK {
		if status == http.StatusTooManyRequests || strings.Contains(strings.ToUpper(payload.ResponseDetails), "QUOTA") {
			return nil, errors.New(errors.CodeRateLimited, "translation quota exhausted")
		}
		return nil, errors.New(errors.CodeUpstreamError,
			fmt.Sprintf("translate returned status %d: %s", status, payload.ResponseDetails))
	}

	translated := strings.TrimSpace(payload.ResponseData.TranslatedText)
	if translated == "" {
		return nil, errors.New(errors.CodeUpstreamError, "translate returned an empty result")
	}

	return &domain.Translation{
		SourceLang: source,
		TargetLang: target,
		Original:   text,
		Translated: translated,
	}, nil
}

func translationCacheKey(text, source, target string) string {
	sum := sha1.Sum([]byte(text))
	return fmt.Sprintf("translate:%s:%s:%x", source, target, sum[:8])
}
