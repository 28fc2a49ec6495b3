// Package subflow is the subscription purchase wizard: pick a plan, pay,
// get the extension. Remaining time on an active subscription is stacked,
// and a purchase lifts the free-tier message limit.
package subflow

import (
	"context"
	"fmt"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/paygate"
	"github.com/greetly/greetly/internal/quota"
	"github.com/greetly/greetly/internal/subs"
)

// Name is the flow's namespace in the session store.
const Name = "subscription"

const (
	stChoosingPlan flow.State = "choosing_plan"
	stPaying       flow.State = "awaiting_payment"
	stGranted      flow.State = "granted"
)

// Session attribute keys owned by this flow: plan_id, granted_until.
const (
	attrPlanID = "plan_id"
	// attrGrantedUntil marks that the extension already happened, so a retry
	// after a failed confirmation only resends the message.
	attrGrantedUntil = "granted_until"
)

// Deps are the collaborators the purchase flow drives.
type Deps struct {
	Subs    *subs.Service
	Quota   *quota.Gate
	Gateway paygate.Gateway
}

// New builds the subscription flow definition.
func New(d Deps) *flow.Definition {
	step := &paygate.Step{
		Gateway: d.Gateway,
		ResolveAmount: func(s *flow.Session) (int, string) {
			p, _ := subs.PlanByID(s.AttrString(attrPlanID))
			return p.Amount, "subscription " + p.Title
		},
	}

	def := flow.New(Name, stChoosingPlan)

	def.Enter(stChoosingPlan, func(ctx context.Context, fc *flow.Ctx) error {
		rows := make([][]delivery.Button, 0, len(subs.DefaultPlans)+1)
		for _, p := range subs.DefaultPlans {
			label := fmt.Sprintf("%s - %d", p.Title, p.Amount)
			rows = append(rows, delivery.Row(delivery.Btn(label, flow.ActionSelect, p.ID)))
		}
		rows = append(rows, delivery.Row(delivery.Btn("Cancel", flow.ActionMenu, "")))
		return fc.Prompt(ctx, delivery.Message{Text: "Choose a subscription plan.", Rows: rows})
	})
	def.On(stChoosingPlan, flow.ActionSelect, flow.Transition{To: stPaying, Do: func(ctx context.Context, fc *flow.Ctx) error {
		if _, ok := subs.PlanByID(fc.Event.Data); !ok {
			fc.Stay()
			return nil
		}
		fc.Session.SetAttr(attrPlanID, fc.Event.Data)
		return nil
	}})

	def.Enter(stPaying, step.Begin)
	def.On(stPaying, paygate.ActionVerify, flow.Transition{To: stGranted, NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		status, err := step.Verify(ctx, fc)
		if err != nil {
			return err
		}
		switch status {
		case paygate.StatusSucceeded:
		case paygate.StatusFailed:
			paygate.ClearTicket(fc.Session)
			// Drop the stacked plan entry so the re-shown picker starts a
			// clean navigation history.
			fc.Session.Pop()
			fc.Redirect(stChoosingPlan)
		default:
			fc.Stay()
			_, err = fc.Send(ctx, delivery.Message{Text: "The payment is not confirmed yet. Give it a moment and press the button again."})
			return err
		}
		return nil
	}})

	def.Enter(stGranted, func(ctx context.Context, fc *flow.Ctx) error {
		until := fc.Session.AttrString(attrGrantedUntil)
		if until == "" {
			plan, ok := subs.PlanByID(fc.Session.AttrString(attrPlanID))
			if !ok {
				return fmt.Errorf("grant subscription: unknown plan %q", fc.Session.AttrString(attrPlanID))
			}
			expires, err := d.Subs.Extend(ctx, fc.Session.UserID, plan.Days)
			if err != nil {
				return err
			}
			if err := d.Quota.Clear(ctx, fc.Session.UserID, quota.KindFreeMessages); err != nil {
				return err
			}
			until = expires.Format("2 January 2006")
			fc.Session.SetAttr(attrGrantedUntil, until)
		}
		_, err := fc.Send(ctx, delivery.Message{
			Text: fmt.Sprintf("Subscription active until %s. Enjoy!", until),
		})
		return err
	})
	def.Terminal(stGranted)

	return def
}
