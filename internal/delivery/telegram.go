// Package delivery pushes purchased media and notifications to buyers over
// the Telegram Bot API. It implements both the fulfillment deliverer and the
// deposit notifier.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vanityapp123/vanityapp/internal/domain"

	"github.com/shopspring/decimal"
)

// maxMediaPerOrder caps how many media items are pushed per delivered order.
const maxMediaPerOrder = 2

// Bot is a minimal Telegram Bot API client.
type Bot struct {
	token string
	http  *http.Client
	base  string
}

// NewBot creates a Telegram delivery client.
func NewBot(token string) *Bot {
	return &Bot{
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
		base:  "https://api.telegram.org",
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// call posts one Bot API method with a JSON payload.
func (b *Bot) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", b.base, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("delivery: telegram %s failed: %s", method, out.Description)
	}
	return nil
}

// SendMessage sends an HTML-formatted text message to a chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	return b.call(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// NotifyDeposit tells a buyer their deposit was credited.
func (b *Bot) NotifyDeposit(ctx context.Context, telegramID int64, amount, balance decimal.Decimal) error {
	text := fmt.Sprintf("✅ <b>Deposit Confirmed!</b>\n\nReceived: <b>%s SOL</b>\nCurrent balance: <b>%s SOL</b>",
		amount.StringFixed(6), balance.StringFixed(6))
	return b.SendMessage(ctx, telegramID, text)
}

// Deliver pushes a purchased order into the buyer's chat: the product media
// first, then a confirmation message. product may be nil if the catalog
// entry is gone; the order snapshot still identifies the purchase.
func (b *Bot) Deliver(ctx context.Context, acct *domain.Account, order *domain.Order, product *domain.Product) error {
	if product != nil {
		refs := mediaRefs(product.MediaRefs)
		for i, ref := range refs {
			if i >= maxMediaPerOrder {
				break
			}
			payload := map[string]any{"chat_id": acct.TelegramID}
			method := "sendVideo"
			if isPhoto(ref) {
				method = "sendPhoto"
				payload["photo"] = ref
			} else {
				payload["video"] = ref
			}
			if i == 0 {
				payload["caption"] = order.ProductName
				payload["parse_mode"] = "HTML"
			}
			if err := b.call(ctx, method, payload); err != nil {
				return err
			}
		}
	}
	text := fmt.Sprintf("✅ Purchase complete: <b>%s</b>\nPaid: <b>%s SOL</b>\nOrder: <code>%s</code>",
		order.ProductName, order.Price.StringFixed(6), order.OrderID)
	return b.SendMessage(ctx, acct.TelegramID, text)
}

// mediaRefs splits the stored newline-separated media reference list.
func mediaRefs(raw string) []string {
	var refs []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			refs = append(refs, line)
		}
	}
	return refs
}

// isPhoto guesses the media type from the reference extension.
func isPhoto(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".png")
}
