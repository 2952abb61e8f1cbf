package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMessage = 4096

const telegramHelp = "Send `/run <task>` with a feature or a list of steps and I will execute it and reply with the report."

// telegramBot is the part of *tgbotapi.BotAPI the gateway uses.
type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramGateway struct {
	Bot    telegramBot
	Runner Runner
	// NotifyChat receives scheduler notifications.
	NotifyChat int64
	// AllowedChats restricts who may start runs. Empty allows everyone.
	AllowedChats map[int64]bool
}

func NewTelegramGateway(token string, runner Runner, notifyChat int64, allowed []int64) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return newTelegramGateway(bot, runner, notifyChat, allowed), nil
}

func newTelegramGateway(bot telegramBot, runner Runner, notifyChat int64, allowed []int64) *TelegramGateway {
	tg := &TelegramGateway{
		Bot:        bot,
		Runner:     runner,
		NotifyChat: notifyChat,
	}
	if len(allowed) > 0 {
		tg.AllowedChats = make(map[int64]bool, len(allowed))
		for _, id := range allowed {
			tg.AllowedChats[id] = true
		}
	}
	return tg
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			user := ""
			if update.Message.From != nil {
				user = update.Message.From.UserName
			}
			log.Printf("[%s] %s", user, update.Message.Text)
			tg.handleMessage(ctx, update.Message.Chat.ID, update.Message.Text)
		}
	}
}

func (tg *TelegramGateway) handleMessage(ctx context.Context, chatID int64, text string) {
	if tg.AllowedChats != nil && !tg.AllowedChats[chatID] {
		log.Printf("Ignoring message from unauthorized chat %d", chatID)
		return
	}

	command, task := parseCommand(text)
	switch command {
	case "start", "help":
		tg.reply(chatID, telegramHelp)
		return
	case "run", "":
	default:
		tg.reply(chatID, fmt.Sprintf("Unknown command /%s.\n\n%s", command, telegramHelp))
		return
	}

	if strings.TrimSpace(task) == "" {
		tg.reply(chatID, telegramHelp)
		return
	}
	if tg.Runner == nil {
		tg.reply(chatID, "No runner is configured.")
		return
	}

	tg.reply(chatID, "Running...")
	rep, err := tg.Runner.Run(ctx, task, fmt.Sprintf("telegram:%d", chatID))
	switch {
	case rep != nil && err != nil:
		tg.reply(chatID, fmt.Sprintf("⚠️ Run aborted: %v\n\n%s", err, rep.Markdown()))
	case err != nil:
		tg.reply(chatID, fmt.Sprintf("⚠️ Run failed: %v", err))
	default:
		tg.reply(chatID, rep.Markdown())
	}
}

// parseCommand splits "/run@bot text" into ("run", "text"). Plain text has no
// command.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	if nl := strings.IndexByte(head, '\n'); nl >= 0 {
		rest = head[nl+1:] + " " + rest
		head = head[:nl]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	if err := tg.send(chatID, text); err != nil {
		log.Printf("Error replying to chat %d: %v", chatID, err)
	}
}

// send delivers text in chunks. A chunk Telegram rejects as Markdown is resent
// as plain text.
func (tg *TelegramGateway) send(chatID int64, text string) error {
	for _, part := range chunk(text, telegramMaxMessage) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := tg.Bot.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := tg.Bot.Send(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Notify sends text to the configured notification chat.
func (tg *TelegramGateway) Notify(ctx context.Context, text string) error {
	if tg.NotifyChat == 0 {
		return fmt.Errorf("telegram notification chat is not configured")
	}
	return tg.send(tg.NotifyChat, text)
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
