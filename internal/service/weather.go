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
	"github.com/kavik/groupwarden-go/internal/service/cache"
	"github.com/kavik/groupwarden-go/internal/util"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

const weatherServiceName = "weather"

// WeatherService fetches current conditions from OpenWeatherMap. All
// requests pass through the gateway so the service shares one circuit
// breaker, and same-city lookups are served from cache for a few
// minutes to keep the free tier happy.
type WeatherService struct {
	gw         *gateway.Gateway
	cache      *cache.CacheService
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *zap.Logger
}

func NewWeatherService(gw *gateway.Gateway, cacheSvc *cache.CacheService, apiKey string, logger *zap.Logger) *WeatherService {
	return &WeatherService{
		gw:         gw,
		cache:      cacheSvc,
		httpClient: &http.Client{Timeout: constants.APIConfig.ServiceTimeout},
		apiKey:     apiKey,
		baseURL:    constants.APIConfig.WeatherBaseURL,
		logger:     logger,
	}
}

func (s *WeatherService) Current(ctx context.Context, city string) (*domain.WeatherReport, error) {
	if s.apiKey == "" {
		return nil, errors.New(errors.CodeServiceUnavailable, "weather API key is not configured")
	}

	cacheKey := fmt.Sprintf("weather:%s", util.Normalize(city))
	if s.cache != nil {
		var cached domain.WeatherReport
		if exists, err := s.cache.Exists(ctx, cacheKey); err == nil && exists {
			if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
				s.logger.Debug("Weather cache hit", zap.String("city", city))
				return &cached, nil
			}
		}
	}

	result, err := s.gw.Execute(ctx, gateway.Call{
		Service:   weatherServiceName,
		Operation: "current",
		Retryable: true,
		Invoke: func(callCtx context.Context) (any, error) {
			return s.fetchCurrent(callCtx, city)
		},
	})
	if err != nil {
		return nil, err
	}

	report := result.(*domain.WeatherReport)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, constants.CacheTTL.WeatherQuery); err != nil {
			s.logger.Warn("Weather cache write failed", zap.String("city", city), zap.Error(err))
		}
	}
	return report, nil
}

func (s *WeatherService) fetchCurrent(ctx context.Context, city string) (*domain.WeatherReport, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", s.apiKey)
	params.Set("units", "metric")
	params.Set("lang", "en")

	endpoint := fmt.Sprintf("%s/weather?%s", strings.TrimRight(s.baseURL, "/"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to build weather request", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "weather request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(weatherServiceName, resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	var payload struct {
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(errors.CodeUpstreamError, "failed to decode weather response", err)
	}

	report := &domain.WeatherReport{
		City:       payload.Name,
		Country:    payload.Sys.Country,
		TempC:      payload.Main.Temp,
		FeelsLikeC: payload.Main.FeelsLike,
		Humidity:   payload.Main.Humidity,
		WindSpeed:  payload.Wind.Speed,
	}
	if report.City == "" {
		report.City = city
	}
	if len(payload.Weather) > 0 {
		report.Description = payload.Weather[0].Description
	}
	return report, nil
}

// classifyHTTPStatus maps upstream status codes onto the shared error
// taxonomy so the gateway and formatter can react by kind.
func classifyHTTPStatus(service string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return errors.New(errors.CodeRateLimited, fmt.Sprintf("%s returned 429", service))
	case status >= 500:
		return errors.New(errors.CodeUpstreamError, fmt.Sprintf("%s returned %d", service, status))
	default:
		return errors.NewAPIError(fmt.Sprintf("%s returned %d", service, status), status, map[string]any{
			"service": service,
		})
	}
}
