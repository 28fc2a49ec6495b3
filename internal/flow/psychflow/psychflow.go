// Package psychflow is the psychologist-style chat. Free-tier users get a
// limited number of messages; an active subscription lifts the limit.
package psychflow

import (
	"context"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/gen"
	"github.com/greetly/greetly/internal/quota"
	"github.com/greetly/greetly/internal/subs"
)

// Name is the flow's namespace in the session store.
const Name = "psych"

const stChatting flow.State = "chatting"

// Session attribute keys owned by this flow: history.
const attrHistory = "history"

// historyLimit bounds how many prior turns travel with each request.
const historyLimit = 20

const systemPrompt = "You are a supportive, empathetic conversational " +
	"companion. Listen carefully, ask gentle questions and never give " +
	"medical diagnoses."

// actionSubscribe jumps into the purchase flow when the free tier runs out.
const actionSubscribe = "subscribe"

// Deps are the collaborators the chat drives.
type Deps struct {
	Gen   gen.Generator
	Quota *quota.Gate
	Subs  *subs.Service

	// FreeLimit is the all-time free message allowance.
	FreeLimit int

	// SubscribeFlow names the flow the Subscribe button switches into.
	SubscribeFlow string
}

// New builds the chat flow definition.
func New(d Deps) *flow.Definition {
	def := flow.New(Name, stChatting)

	def.Enter(stChatting, func(ctx context.Context, fc *flow.Ctx) error {
		if fc.Event.Kind != "" {
			// Re-entered via back or retry; the dialog just continues.
			return nil
		}
		_, err := fc.Send(ctx, delivery.Message{
			Text: "I'm here to listen. Tell me what's on your mind.",
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("End conversation", flow.ActionMenu, ""))},
		})
		return err
	})

	def.On(stChatting, flow.EventText, flow.Transition{NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		userID := fc.Session.UserID

		active, err := d.Subs.IsActive(ctx, userID)
		if err != nil {
			return err
		}
		if !active {
			ok, err := d.Quota.Check(ctx, userID, quota.KindFreeMessages, d.FreeLimit)
			if err != nil {
				return err
			}
			if !ok {
				_, err := fc.Send(ctx, delivery.Message{
					Text: "You've used all your free messages. A subscription removes the limit.",
					Rows: [][]delivery.Button{delivery.Row(
						delivery.Btn("Subscribe", actionSubscribe, ""),
						delivery.Btn("End conversation", flow.ActionMenu, ""),
					)},
				})
				return err
			}
		}

		turns := append(history(fc.Session), gen.Turn{Role: gen.RoleUser, Text: fc.Event.Text})
		reply, err := d.Gen.Generate(ctx, systemPrompt, turns)
		if err != nil {
			return err
		}

		// Quota is charged only after the generation succeeded.
		if !active {
			if _, err := d.Quota.Consume(ctx, userID, quota.KindFreeMessages); err != nil {
				return err
			}
		}

		appendHistory(fc.Session, fc.Event.Text, reply)
		_, err = fc.Send(ctx, delivery.Message{Text: reply})
		return err
	}})

	if d.SubscribeFlow != "" {
		def.On(stChatting, actionSubscribe, flow.Transition{NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
			fc.SwitchFlow(d.SubscribeFlow)
			return nil
		}})
	}

	return def
}

func history(s *flow.Session) []gen.Turn {
	raw, _ := s.Attrs[attrHistory].([]any)
	out := make([]gen.Turn, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		text, _ := m["text"].(string)
		out = append(out, gen.Turn{Role: gen.Role(role), Text: text})
	}
	return out
}

func appendHistory(s *flow.Session, userText, reply string) {
	raw, _ := s.Attrs[attrHistory].([]any)
	raw = append(raw,
		map[string]any{"role": string(gen.RoleUser), "text": userText},
		map[string]any{"role": string(gen.RoleAssistant), "text": reply},
	)
	if len(raw) > historyLimit {
		raw = raw[len(raw)-historyLimit:]
	}
	s.SetAttr(attrHistory, raw)
}
