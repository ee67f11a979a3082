package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kavik/groupwarden-go/internal/gateway"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

const assistantSystemPrompt = "You are a helpful assistant inside a group chat. " +
	"Answer briefly in plain text, at most a short paragraph. No markdown."

// AssistantService answers free-form questions with Gemini, falling
// back to OpenAI when Gemini fails and a fallback key is configured.
// Each provider runs behind its own breaker; generation is never
// retried because repeated calls bill twice for the same answer.
type AssistantService struct {
	gw             *gateway.Gateway
	geminiClient   *genai.Client
	openaiClient   *openai.Client
	geminiModel    string
	openaiModel    string
	enableFallback bool
	logger         *zap.Logger
}

type AssistantConfig struct {
	GeminiAPIKey   string
	OpenAIAPIKey   string
	GeminiModel    string
	OpenAIModel    string
	EnableFallback bool
}

func NewAssistantService(ctx context.Context, gw *gateway.Gateway, cfg AssistantConfig, logger *zap.Logger) (*AssistantService, error) {
	geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	geminiModel := cfg.GeminiModel
	if geminiModel == "" {
		geminiModel = "gemini-2.5-flash"
	}
	openaiModel := cfg.OpenAIModel
	if openaiModel == "" {
		openaiModel = "gpt-4.1-mini"
	}

	svc := &AssistantService{
		gw:             gw,
		geminiClient:   geminiClient,
		geminiModel:    geminiModel,
		openaiModel:    openaiModel,
		enableFallback: cfg.EnableFallback && cfg.OpenAIAPIKey != "",
		logger:         logger,
	}

	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
		svc.openaiClient = &client
		logger.Info("OpenAI fallback enabled", zap.String("model", openaiModel))
	} else {
		logger.Info("OpenAI fallback disabled (no API key)")
	}

	return svc, nil
}

func (s *AssistantService) Answer(ctx context.Context, question string) (string, error) {
	result, err := s.gw.Execute(ctx, gateway.Call{
		Service:   "gemini",
		Operation: "answer",
		Retryable: false,
		Invoke: func(callCtx context.Context) (any, error) {
			return s.answerWithGemini(callCtx, question)
		},
	})
	if err == nil {
		return result.(string), nil
	}

	if !s.enableFallback || s.openaiClient == nil {
		return "", err
	}

	s.logger.Warn("Gemini failed, falling back to OpenAI",
		zap.String("code", errors.CodeOf(err)),
	)

	fallbackResult, fallbackErr := s.gw.Execute(ctx, gateway.Call{
		Service:   "openai",
		Operation: "answer",
		Retryable: false,
		Invoke: func(callCtx context.Context) (any, error) {
			return s.answerWithOpenAI(callCtx, question)
		},
	})
	if fallbackErr != nil {
		return "", err
	}
	return fallbackResult.(string), nil
}

func (s *AssistantService) answerWithGemini(ctx context.Context, question string) (string, error) {
	temperature := float32(0.7)
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 512,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assistantSystemPrompt}},
		},
	}

	resp, err := s.geminiClient.Models.GenerateContent(ctx, s.geminiModel, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: question},
			},
		},
	}, genConfig)
	if err != nil {
		s.logger.Error("Gemini generation failed", zap.Error(err))
		return "", err
	}

	text := extractGeminiText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}

	s.logger.Debug("Gemini response received", zap.Int("length", len(text)))
	return text, nil
}

func (s *AssistantService) answerWithOpenAI(ctx context.Context, question string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: s.resolveOpenAIModel(),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(assistantSystemPrompt),
			openai.UserMessage(question),
		},
		MaxCompletionTokens: openai.Int(512),
	}

	resp, err := s.openaiClient.Chat.Completions.New(ctx, params)
	if err != nil {
		s.logger.Error("OpenAI generation failed", zap.Error(err))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}

	text := resp.Choices[0].Message.Content
	s.logger.Debug("OpenAI response received",
		zap.Int("length", len(text)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return text, nil
}

func (s *AssistantService) resolveOpenAIModel() openai.ChatModel {
	switch s.openaiModel {
	case "gpt-4.1":
		return openai.ChatModelGPT4_1
	case "gpt-4.1-mini":
		return openai.ChatModelGPT4_1Mini
	case "gpt-4.1-nano":
		return openai.ChatModelGPT4_1Nano
	case "gpt-4o":
		return openai.ChatModelGPT4o
	case "gpt-4o-mini":
		return openai.ChatModelGPT4oMini
	default:
		return openai.ChatModelGPT4_1Mini
	}
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.TrimSpace(strings.Join(texts, ""))
}
