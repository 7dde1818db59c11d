package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fic-gradebot/internal/components/assert"
	"fic-gradebot/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const DefaultTelegramApi = "https://api.telegram.org"

const report_telegram_send = "telegram.send"

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResult struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram sends messages through the Bot API's sendMessage method, the
// chat id is the user id.
type Telegram struct {
	http *resty.Client
	tel  telemetry.API
}

func NewTelegram(apiUrl, token string, tel telemetry.API) Telegram {
	assert.NotEmptyStr(token, "telegram bot token")
	assert.NotNil(tel, "tel")
	if apiUrl == "" {
		apiUrl = DefaultTelegramApi
	}

	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("%s/bot%s", apiUrl, token))
	client.SetTimeout(time.Second * 15)

	// the bot api allows about 30 messages per second across chats
	limiter := rate.NewLimiter(25, 5)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return Telegram{
		http: client,
		tel:  telemetry.NewScopedAPI("notify_telegram", tel),
	}
}

func (t Telegram) Send(ctx context.Context, userID int64, message string) error {
	if message == "" {
		return nil
	}

	var result telegramResult
	res, err := t.http.R().
		SetContext(ctx).
		SetBody(telegramMessage{
			ChatID:                strconv.FormatInt(userID, 10),
			Text:                  message,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		t.tel.ReportBroken(report_telegram_send, err, userID)
		return err
	}
	if res.IsError() || !result.Ok {
		err := fmt.Errorf("telegram: %s: %s", res.Status(), result.Description)
		t.tel.ReportWarning(report_telegram_send, err, userID)
		return err
	}
	return nil
}
