// Package letterflow is the letter-to-the-future wizard: write a letter,
// pick a delivery date, pay, and the scheduler delivers it unattended when
// the time comes.
package letterflow

import (
	"context"
	"fmt"
	"time"

	tghelpers "github.com/greetly/greetly/core/telegram/helpers"
	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/paygate"
	"github.com/greetly/greetly/internal/sched"
)

// Name is the flow's namespace in the session store.
const Name = "letter"

const (
	stWriting   flow.State = "writing"
	stDate      flow.State = "choosing_date"
	stPaying    flow.State = "awaiting_payment"
	stScheduled flow.State = "scheduled"
)

// Session attribute keys owned by this flow: letter_text, deliver_at,
// scheduled_id.
const (
	attrText      = "letter_text"
	attrDeliverAt = "deliver_at"
	// attrScheduledID marks that the action is already persisted, so a retry
	// after a failed confirmation only resends the message.
	attrScheduledID = "scheduled_id"
)

// Deps are the collaborators the letter flow drives.
type Deps struct {
	Scheduler *sched.Scheduler
	Gateway   paygate.Gateway

	// Price is the charge for one future letter.
	Price int
}

// New builds the letter flow definition.
func New(d Deps) *flow.Definition {
	step := &paygate.Step{
		Gateway: d.Gateway,
		Amount:  d.Price,
		Purpose: "letter to the future",
	}

	def := flow.New(Name, stWriting)

	def.Enter(stWriting, func(ctx context.Context, fc *flow.Ctx) error {
		return fc.Prompt(ctx, delivery.Message{
			Text: "Write the letter your future self will receive.",
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("Cancel", flow.ActionMenu, ""))},
		})
	})
	def.On(stWriting, flow.EventText, flow.Transition{To: stDate, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrText, fc.Event.Text)
		return nil
	}})

	def.Enter(stDate, func(ctx context.Context, fc *flow.Ctx) error {
		return fc.Prompt(ctx, delivery.Message{
			Text: "When should it arrive? Send a date like 2027-03-01 or 01.03.2027 15:00.",
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("Back", flow.ActionBack, ""))},
		})
	})
	def.On(stDate, flow.EventText, flow.Transition{To: stPaying, Do: func(ctx context.Context, fc *flow.Ctx) error {
		at, ok := tghelpers.ParseFlexibleDate(fc.Event.Text)
		if !ok || !at.After(time.Now()) {
			// Malformed input re-prompts in place, no transition.
			fc.Stay()
			_, err := fc.Send(ctx, delivery.Message{Text: "I couldn't read that as a future date. Try 2027-03-01 or 01.03.2027 15:00."})
			return err
		}
		fc.Session.SetAttr(attrDeliverAt, at.Format(time.RFC3339))
		return nil
	}})

	def.Enter(stPaying, step.Begin)
	def.On(stPaying, paygate.ActionVerify, flow.Transition{To: stScheduled, NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		status, err := step.Verify(ctx, fc)
		if err != nil {
			return err
		}
		switch status {
		case paygate.StatusSucceeded:
		case paygate.StatusFailed:
			paygate.ClearTicket(fc.Session)
			// Drop the stacked date entry so back from the re-shown date
			// prompt lands on the letter text, not the same prompt again.
			fc.Session.Pop()
			fc.Redirect(stDate)
		default:
			fc.Stay()
			_, err = fc.Send(ctx, delivery.Message{Text: "The payment is not confirmed yet. Give it a moment and press the button again."})
			return err
		}
		return nil
	}})

	def.Enter(stScheduled, func(ctx context.Context, fc *flow.Ctx) error {
		at, err := time.Parse(time.RFC3339, fc.Session.AttrString(attrDeliverAt))
		if err != nil {
			return fmt.Errorf("schedule letter: %w", err)
		}
		if fc.Session.AttrString(attrScheduledID) == "" {
			action, err := sched.NewAction(fc.Session.UserID, sched.KindLetter,
				sched.LetterPayload{Text: fc.Session.AttrString(attrText)}, at)
			if err != nil {
				return fmt.Errorf("schedule letter: %w", err)
			}
			if err := d.Scheduler.Schedule(ctx, action); err != nil {
				return err
			}
			fc.Session.SetAttr(attrScheduledID, action.ID.String())
		}
		_, err = fc.Send(ctx, delivery.Message{
			Text: fmt.Sprintf("Done. Your letter will arrive on %s.", at.Format("2 January 2006 15:04")),
		})
		return err
	})
	def.Terminal(stScheduled)

	return def
}
