package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/conductor/internal/executor"
	"github.com/rahul/conductor/internal/report"
	"github.com/rahul/conductor/internal/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	updates chan tgbotapi.Update
	stopped bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	if msg.ParseMode == tgbotapi.ModeMarkdown && strings.Contains(msg.Text, "[broken") {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.updates)
	}
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, m := range b.sent {
		out[i] = m.Text
	}
	return out
}

type stubRunner struct {
	mu           sync.Mutex
	descriptions []string
	labels       []string
	err          error
}

func (r *stubRunner) Run(ctx context.Context, description, label string) (*report.Report, error) {
	r.mu.Lock()
	r.descriptions = append(r.descriptions, description)
	r.labels = append(r.labels, label)
	r.mu.Unlock()

	step := steps.Step{Index: 0, Text: description}
	rep := report.Assemble(report.Run{ID: "run-1", Source: label, Status: report.StatusCompleted},
		[]executor.Outcome{executor.Succeeded(step, "http_request", "200 OK")})
	return rep, r.err
}

func TestTelegram_RunCommand(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	runner := &stubRunner{}
	tg := newTelegramGateway(bot, runner, 0, nil)

	tg.handleMessage(context.Background(), 42, "/run GET https://api.example.com/health")

	require.Equal(t, []string{"GET https://api.example.com/health"}, runner.descriptions)
	assert.Equal(t, "telegram:42", runner.labels[0])

	texts := bot.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Running...", texts[0])
	assert.Contains(t, texts[1], "`run-1`")
	assert.Equal(t, int64(42), bot.sent[1].ChatID)
}

func TestTelegram_Commands(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	runner := &stubRunner{}
	tg := newTelegramGateway(bot, runner, 0, nil)

	tg.handleMessage(context.Background(), 1, "/start")
	tg.handleMessage(context.Background(), 1, "/run@conductor_bot")
	tg.handleMessage(context.Background(), 1, "/deploy now")

	texts := bot.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, telegramHelp, texts[0])
	assert.Equal(t, telegramHelp, texts[1])
	assert.Contains(t, texts[2], "Unknown command /deploy")
	assert.Empty(t, runner.descriptions)
}

func TestTelegram_PlainTextRuns(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	runner := &stubRunner{}
	tg := newTelegramGateway(bot, runner, 0, nil)

	tg.handleMessage(context.Background(), 1, "Given I am on https://example.com\nThen I see \"Welcome\"")
	require.Len(t, runner.descriptions, 1)
	assert.Contains(t, runner.descriptions[0], "Then I see")
}

func TestTelegram_AllowedChats(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	runner := &stubRunner{}
	tg := newTelegramGateway(bot, runner, 0, []int64{7})

	tg.handleMessage(context.Background(), 8, "/run GET https://example.com")
	assert.Empty(t, runner.descriptions)
	assert.Empty(t, bot.texts())

	tg.handleMessage(context.Background(), 7, "/run GET https://example.com")
	assert.Len(t, runner.descriptions, 1)
}

func TestTelegram_AbortedRun(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	runner := &stubRunner{err: errors.New("no capabilities registered")}
	tg := newTelegramGateway(bot, runner, 0, nil)

	tg.handleMessage(context.Background(), 1, "/run anything")
	texts := bot.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Run aborted: no capabilities registered")
	assert.Contains(t, texts[1], "`run-1`")
}

func TestTelegram_NotifyFallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	tg := newTelegramGateway(bot, nil, 99, nil)

	require.NoError(t, tg.Notify(context.Background(), "step [broken markdown"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, "", bot.sent[0].ParseMode)
	assert.Equal(t, int64(99), bot.sent[0].ChatID)

	unset := newTelegramGateway(bot, nil, 0, nil)
	assert.Error(t, unset.Notify(context.Background(), "hello"))
}

func TestTelegram_StartStops(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 2)}
	runner := &stubRunner{}
	tg := newTelegramGateway(bot, runner, 0, nil)

	bot.updates <- tgbotapi.Update{}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 5},
		Text: "/run GET https://example.com",
	}}

	done := make(chan error)
	go func() { done <- tg.Start(context.Background()) }()

	require.Eventually(t, func() bool { return len(bot.texts()) == 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, tg.Stop())
	assert.NoError(t, <-done)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in, command, rest string
	}{
		{"/run GET https://x", "run", "GET https://x"},
		{"/RUN@bot   open page", "run", "open page"},
		{"/run\nGiven a\nWhen b", "run", "Given a\nWhen b"},
		{"hello", "", "hello"},
		{"/help", "help", ""},
	}
	for _, c := range cases {
		command, rest := parseCommand(c.in)
		assert.Equal(t, c.command, command, c.in)
		assert.Equal(t, c.rest, rest, c.in)
	}
}

type fakeChannel struct {
	channel  string
	messages []string
	err      error
}

func (f *fakeChannel) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channel = channelID
	f.messages = append(f.messages, content)
	return &discordgo.Message{Content: content}, nil
}

func TestDiscordNotifier(t *testing.T) {
	ch := &fakeChannel{}
	d := &DiscordNotifier{Session: ch, ChannelID: "123"}

	long := strings.Repeat("1. [ok] GET https://api.example.com/health\n", 100)
	require.NoError(t, d.Notify(context.Background(), long))

	assert.Equal(t, "123", ch.channel)
	require.Len(t, ch.messages, 3)
	for _, m := range ch.messages {
		assert.LessOrEqual(t, len(m), discordMaxMessage)
	}
	assert.Equal(t, long, strings.Join(ch.messages, ""))

	failing := &DiscordNotifier{Session: &fakeChannel{err: errors.New("401 Unauthorized")}, ChannelID: "123"}
	assert.ErrorContains(t, failing.Notify(context.Background(), "hi"), "401 Unauthorized")
}

func TestMulti(t *testing.T) {
	ok := &fakeChannel{}
	bad := &fakeChannel{err: errors.New("down")}
	m := Multi{&DiscordNotifier{Session: ok, ChannelID: "a"}, nil, &DiscordNotifier{Session: bad, ChannelID: "b"}}

	err := m.Notify(context.Background(), "done")
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, []string{"done"}, ok.messages)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunk("short", 10))

	parts := chunk("ééééé", 4)
	assert.Equal(t, []string{"éé", "éé", "é"}, parts)

	parts = chunk("aaa\nbbb\nccc", 8)
	assert.Equal(t, []string{"aaa\nbbb\n", "ccc"}, parts)
}
