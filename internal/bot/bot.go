package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cryptofather/crypto-bot/internal/state"
	"github.com/go-errors/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const updateQueueSize = 100

// BotAPI is the part of the Telegram client the bot uses. *tgbotapi.BotAPI satisfies it.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)

// DataFetcher produces the reply texts.
type DataFetcher interface {
	BitcoinAge(now time.Time) string
	BitcoinStatus(ctx context.Context) string
	BitcoinNetworkInfo() (string, error)
	BitcoinInfo(ctx context.Context) (string, error)
	EstimateFee() (string, error)
	Transaction(hash string) (string, error)
	Block(hashOrHeight string) (string, error)
	LastBlocks() (string, error)
	Address(ctx context.Context, address string) (string, error)
	AddressHistory(ctx context.Context, address string) (string, error)
	PriceQuotes(ctx context.Context, symbol string) (string, error)
	MarketStats(ctx context.Context, symbol string) (string, error)
	MarketOverview(ctx context.Context) (string, error)
}

type Bot struct {
	api        BotAPI
	fetcher    DataFetcher
	reporter   state.ErrorReporter
	bus        state.Publisher
	webhookURL string
	now        func() time.Time

	updates  chan tgbotapi.Update
	commands map[string]command
}

// NewBot creates the bot. Updates are pushed in by the webhook handler through Enqueue.
func NewBot(api BotAPI, fetcher DataFetcher, reporter state.ErrorReporter, bus state.Publisher, webhookURL string) *Bot {
	b := &Bot{
		api:        api,
		fetcher:    fetcher,
		reporter:   reporter,
		bus:        bus,
		webhookURL: webhookURL,
		now:        time.Now,
		updates:    make(chan tgbotapi.Update, updateQueueSize),
	}
	b.commands = b.registerCommands()
	return b
}

// Start registers the webhook and handles queued updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	if err := b.registerWebhook(); err != nil {
		log.Errorf("Failed to set Telegram webhook: %v", err)
		b.reporter.SetErrorState(err)
	}
	log.Info("Telegram bot started")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			log.Info("Telegram bot is stopping...")
			wg.Wait()
			return
		case update := <-b.updates:
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) registerWebhook() error {
	if b.webhookURL == "" {
		return nil
	}
	wh, err := tgbotapi.NewWebhook(b.webhookURL)
	if err != nil {
		return err
	}
	if _, err := b.api.Request(wh); err != nil {
		return err
	}
	log.Infof("Telegram webhook set to %s", redact(b.webhookURL))
	return nil
}

// Enqueue hands an update to the bot; it reports false when the queue is full.
func (b *Bot) Enqueue(update tgbotapi.Update) bool {
	select {
	case b.updates <- update:
		return true
	default:
		log.Warnf("Telegram update queue is full, dropping update %d", update.UpdateID)
		return false
	}
}

// HandleUpdate answers a single update. Panics are logged with their stack and swallowed.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrap(r, 2)
			log.Errorf("Panic while handling update %d: %s", update.UpdateID, err.ErrorStack())
			b.reporter.SetErrorState(err)
		}
	}()

	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	if r, ok := b.respond(ctx, msg); ok {
		b.send(msg.Chat.ID, r)
	}
}

func (b *Bot) send(chatID int64, r reply) {
	msg := tgbotapi.NewMessage(chatID, r.text)
	if r.markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
	}
	if _, err := b.api.Send(msg); err != nil {
		if isChatError(err) {
			log.Warnf("Telegram refused message to chat %d: %v", chatID, err)
			return
		}
		log.Errorf("Failed to send Telegram message to chat %d: %v", chatID, err)
		b.reporter.SetErrorState(err)
	}
}

// isChatError reports a 4xx answer of the Bot API, such as a user that blocked the bot
// or a deleted chat. Those concern one chat, not the bot.
func isChatError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500
}

// redact hides the secret path element of the webhook URL.
func redact(webhookURL string) string {
	if i := strings.LastIndex(webhookURL, "/bot"); i >= 0 {
		return webhookURL[:i+len("/bot")] + "***"
	}
	return webhookURL
}
