package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

// Client talks to the chat platform's bot API. All mutating calls are
// safe to repeat; the sink relies on that for at-least-once delivery.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	req := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}

	if err := c.doRequest(ctx, "sendMessage", req, nil); err != nil {
		c.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return err
	}

	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	req := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}

	if err := c.doRequest(ctx, "deleteMessage", req, nil); err != nil {
		c.logger.Error("Failed to delete message",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int64("message_id", messageID),
		)
		return err
	}

	return nil
}

// RestrictUser applies one moderation mode to a member. Kick is
// modelled the platform way, a ban followed by an unban so the user
// may rejoin.
func (c *Client) RestrictUser(ctx context.Context, chatID, userID int64, mode domain.RestrictMode, until time.Time) error {
	var err error
	switch mode {
	case domain.RestrictMute:
		err = c.restrict(ctx, chatID, userID, ChatPermissions{}, until)
	case domain.RestrictUnmute:
		err = c.restrict(ctx, chatID, userID, ChatPermissions{
			CanSendMessages:       true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		}, time.Time{})
	case domain.RestrictBan:
		err = c.ban(ctx, chatID, userID)
	case domain.RestrictUnban:
		err = c.unban(ctx, chatID, userID)
	case domain.RestrictKick:
		if err = c.ban(ctx, chatID, userID); err == nil {
			err = c.unban(ctx, chatID, userID)
		}
	default:
		return errors.NewValidationError("unknown restrict mode", "mode", string(mode))
	}

	if err != nil {
		c.logger.Error("Failed to restrict user",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.String("mode", string(mode)),
		)
		return err
	}

	return nil
}

func (c *Client) restrict(ctx context.Context, chatID, userID int64, perms ChatPermissions, until time.Time) error {
	req := map[string]any{
		"chat_id":     chatID,
		"user_id":     userID,
		"permissions": perms,
	}
	if !until.IsZero() {
		req["until_date"] = until.Unix()
	}
	return c.doRequest(ctx, "restrictChatMember", req, nil)
}

func (c *Client) ban(ctx context.Context, chatID, userID int64) error {
	return c.doRequest(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

func (c *Client) unban(ctx context.Context, chatID, userID int64) error {
	return c.doRequest(ctx, "unbanChatMember", map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": true,
	}, nil)
}

func (c *Client) GetChatAdministrators(ctx context.Context, chatID int64) ([]ChatMember, error) {
	var members []ChatMember
	req := map[string]any{"chat_id": chatID}

	if err := c.doRequest(ctx, "getChatAdministrators", req, &members); err != nil {
		c.logger.Error("Failed to fetch chat administrators",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return nil, err
	}

	return members, nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.doRequest(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.GetMe(ctx)
	return err == nil
}

func (c *Client) doRequest(ctx context.Context, method string, reqBody, result any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return errors.NewAPIError("failed to marshal request", 400, map[string]any{
				"method": method,
			}).WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return errors.NewAPIError("failed to create request", 500, map[string]any{
			"method": method,
		}).WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewAPIError("request failed", 500, map[string]any{
			"method": method,
		}).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewAPIError("failed to read response", 500, map[string]any{
			"method": method,
		}).WithCause(err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.NewAPIError("failed to decode response", resp.StatusCode, map[string]any{
			"method": method,
		}).WithCause(err)
	}

	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		apiErr := errors.NewAPIError(
			fmt.Sprintf("bot API error: %s", envelope.Description),
			code,
			map[string]any{
				"method": method,
			},
		)
		if code == http.StatusTooManyRequests {
			rl := errors.Wrap(errors.CodeRateLimited, "bot API rate limited", apiErr)
			if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
				rl.Context = map[string]any{"retry_after": envelope.Parameters.RetryAfter}
			}
			return rl
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return errors.NewAPIError("failed to decode result", resp.StatusCode, map[string]any{
				"method": method,
			}).WithCause(err)
		}
	}

	return nil
}
