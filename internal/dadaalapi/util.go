package dadaalapi

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"gorm.io/gorm"

	"dadaal/internal/telegram"
)

const (
	MessageTargetSync         = "sync"
	MessageTargetNotification = "notify"
)

const (
	MessageStyleSuccess = "success"
	MessageStyleError   = "error"
)

type WsResponseData struct {
	Target        string           `json:"target"` // 'notify', 'sync'
	User          UserData         `json:"user"`
	ReferralStats RefData          `json:"referral_stats"`
	Data          NotificationData `json:"data"`
}

type NotificationData struct {
	Id      int     `json:"id"`
	Style   string  `json:"style"`
	Type    string  `json:"type"`    // 'credit', 'referral', 'premium'
	Message string  `json:"message"`
	RefId   string  `json:"ref_id"`
	Amount  float64 `json:"amount"`
}

func EscapeMarkdownV2(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	for _, char := range specialChars {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// SendTelegramMessage pushes an ops alert to the configured chat.
// chat selects the destination: "signup" or "finance".
func SendTelegramMessage(msg string, chat string) error {
	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		err := errors.New("TELEGRAM_TOKEN is not set")
		return err
	}
	chatId := ""
	switch chat {
	case "signup":
		chatId = os.Getenv("SIGNUP_CHAT_ID")
	case "finance":
		chatId = os.Getenv("FINANCE_CHAT_ID")
	}
	if chatId == "" {
		chatId = os.Getenv("DEFAULT_CHAT_ID")
	}
	if chatId == "" {
		return errors.New("CHAT_ID is not set")
	}
	chatIdInt, err := strconv.Atoi(chatId)
	if err != nil {
		return err
	}
	id := int64(chatIdInt)
	bot, err := telegram.NewBot(token)
	if err != nil {
		return err
	}
	_, err = bot.Api.SendMessage(id, msg, &gotgbot.SendMessageOpts{
		ParseMode: "MarkdownV2",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	if err != nil {
		return err
	}
	return nil
}

func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// DoEvery runs f on a fixed interval, forever.
func DoEvery(d time.Duration, f func(time.Time)) {
	for x := range time.Tick(d) {
		f(x)
	}
}

// SyncUserStats serializes the current user projection for the websocket feed.
func SyncUserStats(db *gorm.DB, user User) (jsonData []byte) {
	data := WsResponseData{
		Target:        MessageTargetSync,
		User:          NewUserData(user),
		ReferralStats: GetRefStats(db, user),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return jsonData
}
