package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callwatch/internal/domain"
)

type recorder struct {
	msgs []Message
	err  error
}

func (r *recorder) Send(_ context.Context, msg Message) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("chat down")}
	m := Multi{bad, ok}

	err := m.Send(context.Background(), Message{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat down")
	assert.Len(t, ok.msgs, 1, "a failing notifier must not block the others")

	assert.NoError(t, Multi{ok}.Send(context.Background(), Message{Text: "again"}))
	assert.NoError(t, Nop{}.Send(context.Background(), Message{}))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegram_Send(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot, chatID: 42}
	ctx := context.Background()

	require.NoError(t, tg.Send(ctx, Message{Text: "plain"}))
	require.NoError(t, tg.Send(ctx, Message{Text: "with image", ImageURL: "https://example.com/a.png"}))
	require.Len(t, bot.sent, 2)

	text, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), text.ChatID)
	assert.Equal(t, "plain", text.Text)

	photo, ok := bot.sent[1].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "with image", photo.Caption)

	bot.err = errors.New("forbidden")
	assert.ErrorContains(t, tg.Send(ctx, Message{Text: "x"}), "forbidden")
}

func TestNewTelegram_RequiresConfig(t *testing.T) {
	_, err := NewTelegram("", 1)
	assert.Error(t, err)
	_, err = NewTelegram("token", 0)
	assert.Error(t, err)
}

func TestFormatAlert(t *testing.T) {
	name, ticker := "alice", "WIF"
	c := &domain.Call{
		Chain:      domain.ChainSOL,
		Address:    "So11111111111111111111111111111111111111112",
		Caller:     domain.Caller{UserID: "u1", DisplayName: &name},
		Ticker:     &ticker,
		EntryValue: 100000,
	}

	msg := FormatAlert(domain.Alert{Kind: domain.AlertMilestone, Call: c, Threshold: 2, Multiple: 2.5, PeakValue: 250000, CurrentValue: 250000})
	assert.Contains(t, msg.Text, "$WIF hit 2x")
	assert.Contains(t, msg.Text, "2.50x")
	assert.Contains(t, msg.Text, "alice")
	assert.Contains(t, msg.Text, "$100.0K")

	msg = FormatAlert(domain.Alert{Kind: domain.AlertDrawdown, Call: c, PeakValue: 450000, CurrentValue: 200000})
	assert.Contains(t, msg.Text, "dumped 56%")
}

func TestFormatLeaderboard(t *testing.T) {
	msg := FormatLeaderboard(nil)
	assert.Contains(t, msg.Text, "No calls yet")

	msg = FormatLeaderboard([]domain.LeaderboardEntry{
		{CallerID: "a", DisplayName: "Alice", TotalCalls: 3, BestMultiple: 5, AvgMultiple: 4},
		{CallerID: "b", TotalCalls: 1, BestMultiple: 1},
	})
	lines := strings.Split(msg.Text, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1. Alice: best 5.00x, avg 4.00x, 3 call(s)", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2. b:"))
}

func TestUSD(t *testing.T) {
	assert.Equal(t, "$950", usd(950))
	assert.Equal(t, "$12.5K", usd(12500))
	assert.Equal(t, "$3.2M", usd(3_200_000))
	assert.Equal(t, "$1.1B", usd(1_100_000_000))
}

func dialFeed(t *testing.T, f *Feed) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeed_Broadcast(t *testing.T) {
	f := NewFeed(nil)
	a := dialFeed(t, f)
	b := dialFeed(t, f)

	require.Eventually(t, func() bool { return f.Subscribers() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.Send(context.Background(), Message{Text: "to the moon"}))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev feedEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "alert", ev.Type)
		assert.Equal(t, "to the moon", ev.Text)
	}

	require.NoError(t, f.Close())
	assert.Equal(t, 0, f.Subscribers())
	assert.Error(t, f.Send(context.Background(), Message{Text: "late"}))
}

func TestFeed_DropsDisconnected(t *testing.T) {
	f := NewFeed(nil)
	conn := dialFeed(t, f)
	require.Eventually(t, func() bool { return f.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return f.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.Close())
}
