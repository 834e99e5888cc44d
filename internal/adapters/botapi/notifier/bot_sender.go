// Package notifier — доставка уведомлений владельцам через Telegram Bot API.
//
// Бот — отдельный от MTProto-подключений транспорт: уведомление об
// уничтоженном коде должно дойти до владельца, даже если подключение
// аккаунта в этот момент нездорово. Реализация отправляет sendMessage
// c общим троттлером (token bucket) и различает постоянные (4xx) и
// временные (429/5xx/сеть) ошибки в тексте ошибки.
package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/time/rate"
)

// httpClientTimeout — таймаут HTTP-клиента, секунды.
const httpClientTimeout = 30

// BotSender отправляет текстовые уведомления через Bot API.
type BotSender struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewBotSender создаёт сендер для бота.
// При testDC=true добавляется суффикс /test к токену согласно Bot API.
func NewBotSender(token string, testDC bool, rps int) *BotSender {
	if testDC {
		token += "/test"
	}
	return &BotSender{
		baseURL: "https://api.telegram.org/bot" + token + "/sendMessage",
		client: &http.Client{
			Timeout: httpClientTimeout * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Send доставляет текст в чат chatID (владельцы — пользователи, id
// положительный). Запрос проходит через общий троттлер.
func (s *BotSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.performSend(ctx, chatID, text)
}

// performSend выполняет GET /sendMessage и нормализует HTTP/JSON ответы.
func (s *BotSender) performSend(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return handleHTTPError(resp.StatusCode, body)
	}
	return handleJSONResponse(body)
}

// handleHTTPError нормализует не-200 ответы HTTP.
// 429 — лимит, 4xx — постоянная ошибка, 5xx — временная.
func handleHTTPError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return errors.Errorf("bot api rate limit (%d): %s", status, msg)
	case status >= 400 && status < 500:
		return errors.Errorf("bot api client error (%d): %s", status, msg)
	default:
		return errors.Errorf("bot api server error (%d): %s", status, msg)
	}
}

// handleJSONResponse разбирает тело ответа Bot API.
func handleJSONResponse(body []byte) error {
	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		ErrorCode   int    `json:"error_code"`
		Parameters  struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return errors.Wrap(err, "bot api decode response")
	}
	if apiResp.OK {
		return nil
	}

	msg := strings.TrimSpace(apiResp.Description)
	if msg == "" {
		msg = "(empty bot api description)"
	}
	if apiResp.Parameters.RetryAfter > 0 {
		return errors.Errorf("bot api rate limit (retry after %ds): %s", apiResp.Parameters.RetryAfter, msg)
	}
	return errors.Errorf("bot api error %d: %s", apiResp.ErrorCode, msg)
}
