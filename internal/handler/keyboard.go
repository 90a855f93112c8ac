package handler

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"invite2win/internal/model"
)

// Callback data prefixes.
const (
	CallbackCheckJoin  = "check_join"
	CallbackEndDraw    = "end_draw:"
	CallbackCancelDraw = "cancel_draw:"
)

// ChannelLink returns the public link for a channel username, or "".
func ChannelLink(username string) string {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return ""
	}
	return "https://t.me/" + username
}

// JoinMarkup is the "open channel / I joined" keyboard.
func JoinMarkup(channelLink string) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	if channelLink != "" {
		rows = append(rows, []tele.InlineButton{{Text: "🔗 Open channel", URL: channelLink}})
	}
	rows = append(rows, []tele.InlineButton{{Text: "✅ I joined", Data: CallbackCheckJoin}})
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// DrawActionsMarkup lists an end and a cancel button per draw, one per row.
func DrawActionsMarkup(draws []*model.Draw) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, 2*len(draws))
	for _, d := range draws {
		rows = append(rows, []tele.InlineButton{{
			Text: fmt.Sprintf("End #%d", d.ID),
			Data: fmt.Sprintf("%s%d", CallbackEndDraw, d.ID),
		}})
	}
	for _, d := range draws {
		rows = append(rows, []tele.InlineButton{{
			Text: fmt.Sprintf("Cancel #%d", d.ID),
			Data: fmt.Sprintf("%s%d", CallbackCancelDraw, d.ID),
		}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// CallbackData strips the \f marker telebot puts on unique-button data.
func CallbackData(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	return strings.TrimPrefix(cb.Data, "\f")
}

// ParseDrawID extracts the draw ID from "<prefix><id>".
func ParseDrawID(data, prefix string) (int64, error) {
	raw, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, fmt.Errorf("callback %q does not start with %q", data, prefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid draw id %q", raw)
	}
	return id, nil
}

// NewDrawArgs holds the parsed /newdraw arguments.
type NewDrawArgs struct {
	Name  string
	Prize string
	Days  int
}

// Defaults for /newdraw and /draw.
const (
	DefaultDrawName  = "Draw"
	DefaultDrawPrize = "Prize"
)

// ParseNewDrawArgs reads /newdraw [name] [prize] [days]. Only the third
// token is the day count; an unparsable count falls back to defaultDays.
func ParseNewDrawArgs(payload string, defaultDays int) NewDrawArgs {
	args := NewDrawArgs{Name: DefaultDrawName, Prize: DefaultDrawPrize, Days: defaultDays}

	parts := strings.Fields(payload)
	if len(parts) >= 1 {
		args.Name = parts[0]
	}
	if len(parts) >= 2 {
		args.Prize = parts[1]
	}
	if len(parts) >= 3 {
		if days, err := strconv.Atoi(parts[2]); err == nil {
			args.Days = days
		}
	}
	return args
}

// ParsePrize reads the free-text prize of /draw.
func ParsePrize(payload string) string {
	prize := strings.Join(strings.Fields(payload), " ")
	if prize == "" {
		return DefaultDrawPrize
	}
	return prize
}
