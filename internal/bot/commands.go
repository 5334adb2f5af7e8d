package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/cryptofather/crypto-bot/internal/state"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const (
	faqURL        = "https://bitcoin.org/en/faq"
	defaultSymbol = "BTC"

	fetchErrorText   = "Error: Could not fetch the data, please try again later."
	networkErrorText = "Could not fetch network info, still verifying blocks... Or can't connect to core deamon API."
	helpHintText     = "Please use /help or !help to get more info."
)

const helpText = `
/help - Return this help output
/status - Retrieve Bitcoin Core and indexer status
/networkinfo - Get Bitcoin Network info
/stats - Get blockchain, mining and exchange stats
/fee - Get the estimated transaction fees
/price [symbol] - Get the price in fiat and crypto (default: BTC)
/market [symbol] - Get market statistics (default: BTC)
/overview - Get the top 30 coins by market cap

/lastblocks - Get the last 10 blocks
/transaction <hash> - Get transaction info
/block <hash or block height> - Get block info
/address <address> - Get address balance
/transactions <address> - Get last 10 transactions from an address

/why - Why Bitcoin?
/what - What is Bitcoin?
/how - How does Bitcoin work?
/age - How long does Bitcoin exists?
/faq - Frequently Asked Questions`

const whyText = `
Bitcoin is P2P electronic cash that is valuable over legacy systems because of the monetary autonomy it brings to its users.

Bitcoin seeks to address the root problem with conventional currency: all the trust that's required to make it work --
Not that justified trust is a bad thing, but trust makes systems brittle, opaque, and costly to operate.

Trust failures result in systemic collapses, trust curation creates inequality and monopoly lock-in,
and naturally arising trust choke-points can be abused to deny access to due process.
Through the use of cryptographic proof, decentralized networks and open source software Bitcoin minimizes and replaces these trust costs.`

const whatText = "Bitcoin is a peer-to-peer currency. Peer-to-peer means that no central authority issues new money or tracks transactions. These tasks are managed collectively by the network."

const howText = `
Bitcoin uses public-key cryptography, peer-to-peer networking, and proof-of-work to process and verify payments.

Bitcoins are sent (or signed over) from one address to another with each user potentially having many, many addresses.
Each payment transaction is broadcast to the network and included in the blockchain so that the included bitcoins cannot be spent twice.
After an hour or two, each transaction is locked in time by the massive amount of processing power that continues to extend the blockchain.

Using these techniques, Bitcoin provides a fast and extremely reliable payment network that anyone can use.`

type reply struct {
	text     string
	markdown bool
}

func plain(text string) reply {
	return reply{text: text}
}

func markdown(text string) reply {
	return reply{text: text, markdown: true}
}

type command struct {
	// usage is sent when the command needs an argument and got none
	usage   string
	handler func(ctx context.Context, args string) (reply, error)
}

func (b *Bot) registerCommands() map[string]command {
	static := func(r reply) command {
		return command{handler: func(context.Context, string) (reply, error) { return r, nil }}
	}
	text := func(fetch func(ctx context.Context, args string) (string, error)) func(context.Context, string) (reply, error) {
		return func(ctx context.Context, args string) (reply, error) {
			t, err := fetch(ctx, args)
			return markdown(t), err
		}
	}
	orDefault := func(args string) string {
		if args == "" {
			return defaultSymbol
		}
		return args
	}

	return map[string]command{
		"help":  static(plain(helpText)),
		"faq":   static(markdown("[Read FAQ](" + faqURL + ")")),
		"why":   static(plain(whyText)),
		"what":  static(plain(whatText)),
		"how":   static(plain(howText)),
		"start": static(plain(helpText)),
		"age": {handler: func(context.Context, string) (reply, error) {
			return plain(b.fetcher.BitcoinAge(b.now())), nil
		}},
		"status": {handler: func(ctx context.Context, _ string) (reply, error) {
			return markdown(b.fetcher.BitcoinStatus(ctx)), nil
		}},
		"networkinfo": {handler: func(context.Context, string) (reply, error) {
			t, err := b.fetcher.BitcoinNetworkInfo()
			if err != nil {
				log.Errorf("Network info: %v", err)
				return plain(networkErrorText), nil
			}
			return markdown(t), nil
		}},
		"stats": {handler: text(func(ctx context.Context, _ string) (string, error) {
			return b.fetcher.BitcoinInfo(ctx)
		})},
		"fee": {handler: text(func(context.Context, string) (string, error) {
			return b.fetcher.EstimateFee()
		})},
		"price": {handler: text(func(ctx context.Context, args string) (string, error) {
			return b.fetcher.PriceQuotes(ctx, orDefault(args))
		})},
		"market": {handler: text(func(ctx context.Context, args string) (string, error) {
			return b.fetcher.MarketStats(ctx, orDefault(args))
		})},
		"overview": {handler: text(func(ctx context.Context, _ string) (string, error) {
			return b.fetcher.MarketOverview(ctx)
		})},
		"lastblocks": {handler: text(func(context.Context, string) (string, error) {
			return b.fetcher.LastBlocks()
		})},
		"transaction": {
			usage: "Error: Provide at least the transaction hash as argument: /transaction <hash>",
			handler: text(func(_ context.Context, args string) (string, error) {
				return b.fetcher.Transaction(args)
			}),
		},
		"block": {
			usage: "Error: Provide at least the block hash or block height as argument: /block <hash or block height>",
			handler: text(func(_ context.Context, args string) (string, error) {
				return b.fetcher.Block(args)
			}),
		},
		"address": {
			usage:   "Error: Provide at least the address as argument: /address <address>",
			handler: text(b.fetcher.Address),
		},
		"transactions": {
			usage:   "Error: Provide at least the address as argument: /transactions <address>",
			handler: text(b.fetcher.AddressHistory),
		},
	}
}

// parseCommand splits "/cmd@botname args" or "!cmd args" into its lower case name and arguments.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// respond builds the reply to msg; ok is false when the bot stays silent.
func (b *Bot) respond(ctx context.Context, msg *tgbotapi.Message) (reply, bool) {
	text := strings.TrimSpace(msg.Text)
	if text == "/" || text == "!" {
		return plain(helpHintText), true
	}

	name, args, ok := parseCommand(text)
	if !ok {
		return greeting(text, msg.From)
	}
	cmd, ok := b.commands[name]
	if !ok {
		log.Debugf("Ignoring unknown command %q", name)
		return reply{}, false
	}
	b.bus.Publish(state.CommandHandled, name)

	if cmd.usage != "" && args == "" {
		return plain(cmd.usage), true
	}
	r, err := cmd.handler(ctx, args)
	if err != nil {
		log.Errorf("Command %s failed: %v", name, err)
		return plain(fetchErrorText), true
	}
	return r, true
}

func greeting(text string, from *tgbotapi.User) (reply, bool) {
	name := "stranger"
	if from != nil && from.FirstName != "" {
		name = from.FirstName
	}
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "hello"), strings.HasPrefix(lower, "hi"):
		return plain(fmt.Sprintf("Welcome %s 🤟!", name)), true
	case strings.HasPrefix(lower, "bye"):
		return markdown(fmt.Sprintf("Hope to see you around again, 👋 *Bye %s* 👋!", name)), true
	default:
		return reply{}, false
	}
}
