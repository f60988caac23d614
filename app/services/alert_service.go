package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/food-parcel/config"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// AlertChannel delivers one operator alert
type AlertChannel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// AlertService fans alerts out to every configured channel. Delivery
// failures are logged and never returned to the caller.
type AlertService interface {
	Notify(ctx context.Context, subject, body string)
}

type AlertServiceImpl struct {
	channels []AlertChannel
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewAlertService builds the telegram and admin SMS channels that are
// configured. With none configured alerts are only logged.
func NewAlertService(cfg config.AlertConfig, sms SMSProvider, logger zerolog.Logger) (AlertService, error) {
	var channels []AlertChannel
	if strings.TrimSpace(cfg.TelegramToken) != "" {
		tg, err := NewTelegramAlertChannel(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	if strings.TrimSpace(cfg.AdminMobile) != "" && sms != nil {
		channels = append(channels, NewSMSAlertChannel(sms, cfg.AdminMobile))
	}
	return NewAlertServiceWithChannels(logger, channels...), nil
}

func NewAlertServiceWithChannels(logger zerolog.Logger, channels ...AlertChannel) AlertService {
	return &AlertServiceImpl{
		channels: channels,
		timeout:  10 * time.Second,
		logger:   logger.With().Str("component", "alerts").Logger(),
	}
}

func (s *AlertServiceImpl) Notify(ctx context.Context, subject, body string) {
	s.logger.Warn().Str("subject", subject).Str("body", body).Msg("alert")
	for _, ch := range s.channels {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		if err := ch.Send(sendCtx, subject, body); err != nil {
			s.logger.Error().Err(err).Str("channel", ch.Name()).Str("subject", subject).Msg("failed to deliver alert")
		}
		cancel()
	}
}

// telegramSender is the part of *tele.Bot used for alerts
type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramAlertChannel posts alerts to a single chat. The bot never polls.
type TelegramAlertChannel struct {
	bot    telegramSender
	chatID int64
}

func NewTelegramAlertChannel(token string, chatID int64) (*TelegramAlertChannel, error) {
	if chatID == 0 {
		return nil, errors.New("telegram alert chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramAlertChannel{bot: b, chatID: chatID}, nil
}

func (c *TelegramAlertChannel) Name() string { return "telegram" }

func (c *TelegramAlertChannel) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Send(&tele.Chat{ID: c.chatID}, formatAlert(subject, body), &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// SMSAlertChannel texts the administrator
type SMSAlertChannel struct {
	sms    SMSProvider
	mobile string
}

func NewSMSAlertChannel(sms SMSProvider, mobile string) *SMSAlertChannel {
	return &SMSAlertChannel{sms: sms, mobile: mobile}
}

func (c *SMSAlertChannel) Name() string { return "admin_sms" }

func (c *SMSAlertChannel) Send(ctx context.Context, subject, body string) error {
	res, err := c.sms.Send(ctx, c.mobile, formatAlert(subject, body))
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("admin SMS rejected: %s", res.Error)
	}
	return nil
}

func formatAlert(subject, body string) string {
	if body == "" {
		return subject
	}
	return subject + "\n" + body
}
