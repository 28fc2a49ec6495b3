package app

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/greetly/greetly/core/buildinfo"
	"github.com/greetly/greetly/core/telegram/callbacks"
	"github.com/greetly/greetly/core/telegram/commands"
	tghelpers "github.com/greetly/greetly/core/telegram/helpers"
	"github.com/greetly/greetly/core/telegram/keyboard"
	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow/adminflow"
	"github.com/greetly/greetly/internal/flow/cardflow"
	"github.com/greetly/greetly/internal/flow/ideaflow"
	"github.com/greetly/greetly/internal/flow/letterflow"
	"github.com/greetly/greetly/internal/flow/psychflow"
	"github.com/greetly/greetly/internal/flow/subflow"
	"github.com/greetly/greetly/internal/quota"
)

// openCallbackKey launches a flow from a main-menu button; the payload
// carries the flow name.
const openCallbackKey = "open"

const surpriseSystemPrompt = "You are a warm, playful companion. Produce one short " +
	"daily surprise for the user: a compliment, a tiny challenge, or a fun fact. " +
	"Two sentences at most."

var menuEntries = []struct {
	Label string
	Flow  string
}{
	{"🎨 Greeting card", cardflow.Name},
	{"💡 Idea generator", ideaflow.Name},
	{"💬 Heart-to-heart chat", psychflow.Name},
	{"✉️ Letter to the future", letterflow.Name},
	{"⭐ Subscription", subflow.Name},
}

func mainMenu() *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(menuEntries))
	for _, e := range menuEntries {
		rows = append(rows, []keyboard.InlineBtn{{Text: e.Label, Unique: openCallbackKey, Data: e.Flow}})
	}
	return keyboard.InlineButtonsRows(rows...)
}

func (a *App) registerHandlers() error {
	reg := a.registry

	reg.RegisterCommand("/start", commands.Command{
		Description: "Open the main menu",
		Handler:     a.handleStart,
		Aliases:     []string{"menu"},
	})
	reg.RegisterCommand("/card", commands.Command{
		Description: "Create a greeting card",
		Handler:     a.startFlow(cardflow.Name),
	})
	reg.RegisterCommand("/idea", commands.Command{
		Description: "Generate an idea",
		Handler:     a.startFlow(ideaflow.Name),
	})
	reg.RegisterCommand("/chat", commands.Command{
		Description: "Talk it over",
		Handler:     a.startFlow(psychflow.Name),
	})
	reg.RegisterCommand("/letter", commands.Command{
		Description: "Write a letter to the future",
		Handler:     a.startFlow(letterflow.Name),
	})
	reg.RegisterCommand("/subscribe", commands.Command{
		Description: "Buy or extend a subscription",
		Handler:     a.startFlow(subflow.Name),
	})
	reg.RegisterCommand("/surprise", commands.Command{
		Description: "Get your daily surprise",
		Handler:     a.handleSurprise,
	})
	reg.RegisterCommand("/status", commands.Command{
		Description: "Show your subscription status",
		Handler:     a.handleStatus,
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Description: "Abort the current dialog",
		Handler:     a.handleCancel,
	})
	reg.RegisterCommand("/admin", commands.Command{
		Description: "Open the admin panel",
		Handler:     a.startFlow(adminflow.Name),
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/help", commands.Command{
		Description: "List available commands",
		Handler: func(c tele.Context) error {
			var b strings.Builder
			for _, cmd := range reg.ListCommands(true) {
				fmt.Fprintf(&b, "%s - %s\n", cmd.Text, cmd.Description)
			}
			return tghelpers.SendText(c, b.String())
		},
	})
	reg.RegisterCommand("/version", commands.Command{
		Description: "Show build information",
		Handler:     handleVersion,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(openCallbackKey, a.handleOpen); err != nil {
		return err
	}
	return reg.RegisterCallback(delivery.FlowCallbackKey, a.mux.HandleCallback)
}

func (a *App) handleStart(c tele.Context) error {
	return tghelpers.SendMD(c,
		"Hi! I make personalised greetings, ideas and letters.\nPick what we are doing today:",
		mainMenu(),
	)
}

func (a *App) handleOpen(c tele.Context) error {
	name := strings.TrimSpace(callbacks.CallbackPayload(c))
	if name == "" {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	return a.mux.Start(ctx, c.Sender().ID, name)
}

func (a *App) startFlow(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		return a.mux.Start(ctx, c.Sender().ID, name)
	}
}

func (a *App) handleSurprise(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	ok, err := a.quota.Check(ctx, userID, quota.KindDailySurprise, a.cfg.Limits.DailySurprise)
	if err != nil {
		return err
	}
	if !ok {
		return tghelpers.SendText(c, "Today's surprise is already out. Come back tomorrow!")
	}

	text, err := a.gen.Generate(ctx, surpriseSystemPrompt, nil)
	if err != nil {
		return tghelpers.SendText(c, "The surprise got stuck on the way. Try again in a minute.")
	}
	if _, err := a.quota.Consume(ctx, userID, quota.KindDailySurprise); err != nil {
		return err
	}
	return tghelpers.SendText(c, text)
}

func (a *App) handleStatus(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	at, ok, err := a.subsRepo.ExpiresAt(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	if !ok || !at.After(time.Now()) {
		return tghelpers.SendText(c, "No active subscription. Use /subscribe to get one.")
	}
	return tghelpers.SendText(c,
		fmt.Sprintf("Subscription active until %s.", at.Format("2 January 2006")),
	)
}

func (a *App) handleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if !a.mux.InProgress(c.Sender().ID) {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	if err := a.mux.Cancel(ctx, c.Sender().ID); err != nil {
		return err
	}
	return tghelpers.SendMD(c, "Dialog cancelled.", mainMenu())
}

func handleVersion(c tele.Context) error {
	return tghelpers.SendText(c, fmt.Sprintf(
		"version: %s\ncommit: %s\nbuilt: %s",
		buildinfo.Version, buildinfo.Commit, buildinfo.Date,
	))
}

// trackUsers records every sender, feeding the broadcast recipient list.
func (a *App) trackUsers(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if s := c.Sender(); s != nil {
			ctx := tghelpers.BuildContext(c)
			_ = a.users.Upsert(ctx, s.ID, s.Username)
		}
		return next(c)
	}
}
