package paygate

import (
	"context"
	"fmt"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
)

// ActionVerify is the "I have paid" button token. Flows route it back into
// the step's Verify for as long as the session sits at the payment state;
// once the session advances past the gate the token no longer matches and
// re-polling cannot re-run the continuation.
const ActionVerify = "verify"

// Session attribute keys owned by the payment step.
const (
	attrRef     = "payment_ref"
	attrURL     = "payment_url"
	attrAmount  = "payment_amount"
	attrPurpose = "payment_purpose"
)

// Step is the reusable pay-then-verify sub-protocol. A flow embeds it at
// one state: Begin as that state's enter hook, Verify behind ActionVerify.
type Step struct {
	Gateway Gateway
	Amount  int
	Purpose string

	// ResolveAmount, when set, derives amount and purpose from the
	// session instead of the fixed fields, for flows where the price
	// depends on an earlier choice.
	ResolveAmount func(s *flow.Session) (int, string)

	// Text introduces the payment prompt. PayLabel and PaidLabel caption
	// the two standing buttons.
	Text      string
	PayLabel  string
	PaidLabel string
}

// Begin creates the payment once and presents the two standing actions.
// Re-entering the state (via back or retry) reuses the existing ticket
// instead of creating a duplicate payment.
func (st *Step) Begin(ctx context.Context, fc *flow.Ctx) error {
	amount, purpose := st.Amount, st.Purpose
	if st.ResolveAmount != nil {
		amount, purpose = st.ResolveAmount(fc.Session)
	}

	ref := fc.Session.AttrString(attrRef)
	url := fc.Session.AttrString(attrURL)
	if ref == "" {
		ticket, err := st.Gateway.Create(ctx, amount, purpose)
		if err != nil {
			return fmt.Errorf("begin payment: %w", err)
		}
		ref, url = ticket.Ref, ticket.URL
		fc.Session.SetAttr(attrRef, ref)
		fc.Session.SetAttr(attrURL, url)
		fc.Session.SetAttr(attrAmount, ticket.Amount)
		fc.Session.SetAttr(attrPurpose, ticket.Purpose)
	}

	payLabel := st.PayLabel
	if payLabel == "" {
		payLabel = "Pay"
	}
	paidLabel := st.PaidLabel
	if paidLabel == "" {
		paidLabel = "I have paid"
	}
	text := st.Text
	if text == "" {
		text = fmt.Sprintf("To continue, please pay %d.", amount)
	}
	return fc.Prompt(ctx, delivery.Message{
		Text: text,
		Rows: [][]delivery.Button{
			delivery.Row(delivery.Link(payLabel, url)),
			delivery.Row(
				delivery.Btn(paidLabel, ActionVerify, ""),
				delivery.Btn("Back", flow.ActionBack, ""),
			),
		},
	})
}

// Verify polls the gateway for the ticket stored in the session. It never
// mutates anything itself; the flow decides where to go on each status.
func (st *Step) Verify(ctx context.Context, fc *flow.Ctx) (Status, error) {
	ref := fc.Session.AttrString(attrRef)
	if ref == "" {
		return "", fmt.Errorf("verify payment: no ticket in session")
	}
	status, err := st.Gateway.Status(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("verify payment: %w", err)
	}
	return status, nil
}

// ClearTicket drops the stored ticket so a later pass through the gate
// creates a fresh payment.
func ClearTicket(s *flow.Session) {
	s.DelAttr(attrRef)
	s.DelAttr(attrURL)
	s.DelAttr(attrAmount)
	s.DelAttr(attrPurpose)
}
