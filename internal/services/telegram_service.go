package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/example/procura/internal/models"
)

// TelegramService pushes transaction-core events (order confirmed, payment
// settled, refund issued) to an admin Telegram chat. Downstream reporting
// and audit systems consume these same events elsewhere; this channel is
// for operators.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// NotifyOrderConfirmed announces a confirmed, settled order.
func (s *TelegramService) NotifyOrderConfirmed(order *models.Order) error {
	var sb strings.Builder
	sb.WriteString("🛒 <b>Order confirmed</b>\n\n")
	sb.WriteString(fmt.Sprintf("Order: <b>%s</b>\n", order.OrderNumber))
	sb.WriteString(fmt.Sprintf("Payment: %s (%s)\n", order.PaymentMethod, order.PaymentStatus))
	sb.WriteString(fmt.Sprintf("Total: <b>%.2f %s</b>\n\n", order.TotalAmount, order.Currency))
	for _, item := range order.Items {
		sb.WriteString(fmt.Sprintf("• %s × %d — %.2f\n", item.ProductName, item.Quantity, item.LineTotal))
	}
	return s.SendToAdmin(sb.String())
}

// NotifyPaymentSettled announces an asynchronous settlement resolving.
func (s *TelegramService) NotifyPaymentSettled(order *models.Order) error {
	text := fmt.Sprintf(
		"💳 <b>Payment settled</b>\n\nOrder: <b>%s</b>\nMethod: %s\nReference: %s\nAmount: <b>%.2f %s</b>",
		order.OrderNumber, order.PaymentMethod, order.PaymentRef, order.TotalAmount, order.Currency,
	)
	return s.SendToAdmin(text)
}

// NotifyRefundIssued announces a refund.
func (s *TelegramService) NotifyRefundIssued(order *models.Order, amount float64, reason string) error {
	text := fmt.Sprintf(
		"↩️ <b>Refund issued</b>\n\nOrder: <b>%s</b>\nAmount: <b>%.2f %s</b>\nReason: %s",
		order.OrderNumber, amount, order.Currency, reason,
	)
	return s.SendToAdmin(text)
}
