// Package cardflow is the greeting-card builder wizard: pick a category,
// browse backgrounds, fonts and colors, place the text, write it, pay and
// receive the rendered card. An active subscription skips the payment gate.
package cardflow

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/greetly/greetly/core/logger"
	"github.com/greetly/greetly/internal/assets"
	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/gen"
	"github.com/greetly/greetly/internal/paygate"
	"github.com/greetly/greetly/internal/render"
	"github.com/greetly/greetly/internal/subs"
)

// Name is the flow's namespace in the session store.
const Name = "card"

const (
	stCategory   flow.State = "choosing_category"
	stBackground flow.State = "choosing_background"
	stFont       flow.State = "choosing_font"
	stColor      flow.State = "choosing_color"
	stPlacement  flow.State = "choosing_placement"
	stText       flow.State = "entering_text"
	stPaying     flow.State = "awaiting_payment"
	stDelivered  flow.State = "delivered"
)

// Session attribute keys owned by this flow:
// category, bg_id, font_id, color_id, placement, card_text,
// bg_idx, font_idx, color_idx.
const (
	attrCategory = "category"
	attrBgID     = "bg_id"
	attrFontID   = "font_id"
	attrColorID  = "color_id"
	attrPlace    = "placement"
	attrText     = "card_text"
)

var categories = []struct {
	ID    string
	Title string
}{
	{"birthday", "Birthday"},
	{"wedding", "Wedding"},
	{"newyear", "New Year"},
	{"other", "Any occasion"},
}

var placements = []struct {
	ID    string
	Title string
}{
	{"top", "Top"},
	{"center", "Center"},
	{"bottom", "Bottom"},
}

// GenerationSource reports the session generation background jobs must
// match before applying their results.
type GenerationSource interface {
	ActiveGeneration(ctx context.Context, userID int64, flowName string) int64
}

// Deps are the collaborators the card flow drives.
type Deps struct {
	Assets   assets.Repo
	Renderer render.Renderer
	Gen      gen.Generator
	Subs     *subs.Service
	Gateway  paygate.Gateway
	Enricher *gen.Enricher
	Gens     GenerationSource

	// Price is the per-card charge for users without a subscription.
	Price int
}

// New builds the card flow definition.
func New(d Deps) *flow.Definition {
	step := &paygate.Step{
		Gateway: d.Gateway,
		Amount:  d.Price,
		Purpose: "greeting card",
		Text:    fmt.Sprintf("Your card is ready to render. Pay %d to receive it.", d.Price),
	}

	def := flow.New(Name, stCategory)

	def.Enter(stCategory, func(ctx context.Context, fc *flow.Ctx) error {
		rows := make([][]delivery.Button, 0, len(categories)+1)
		for _, c := range categories {
			rows = append(rows, delivery.Row(delivery.Btn(c.Title, flow.ActionSelect, c.ID)))
		}
		rows = append(rows, delivery.Row(delivery.Btn("Cancel", flow.ActionMenu, "")))
		return fc.Prompt(ctx, delivery.Message{Text: "What's the occasion?", Rows: rows})
	})
	def.On(stCategory, flow.ActionSelect, flow.Transition{To: stBackground, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrCategory, fc.Event.Data)
		return nil
	}})

	carousel(def, d.Assets, stBackground, assets.KindBackground, "Choose a background", "bg_idx", attrBgID, stFont)
	carousel(def, d.Assets, stFont, assets.KindFont, "Choose a font", "font_idx", attrFontID, stColor)
	carousel(def, d.Assets, stColor, assets.KindColor, "Choose a text color", "color_idx", attrColorID, stPlacement)

	def.Enter(stPlacement, func(ctx context.Context, fc *flow.Ctx) error {
		row := make([]delivery.Button, 0, len(placements))
		for _, p := range placements {
			row = append(row, delivery.Btn(p.Title, flow.ActionSelect, p.ID))
		}
		return fc.Prompt(ctx, delivery.Message{
			Text: "Where should the text go?",
			Rows: [][]delivery.Button{row, delivery.Row(delivery.Btn("Back", flow.ActionBack, ""))},
		})
	})
	def.On(stPlacement, flow.ActionSelect, flow.Transition{To: stText, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrPlace, fc.Event.Data)
		return nil
	}})

	def.Enter(stText, func(ctx context.Context, fc *flow.Ctx) error {
		return fc.Prompt(ctx, delivery.Message{
			Text: "Now write the greeting text, or send a couple of words and I'll compose one for you.",
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("Back", flow.ActionBack, ""))},
		})
	})
	def.On(stText, flow.EventText, flow.Transition{To: stPaying, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrText, fc.Event.Text)
		startEnrichment(ctx, d, fc)

		active, err := d.Subs.IsActive(ctx, fc.Session.UserID)
		if err != nil {
			return err
		}
		if active {
			fc.Redirect(stDelivered)
		}
		return nil
	}})

	def.Enter(stPaying, step.Begin)
	def.On(stPaying, paygate.ActionVerify, flow.Transition{To: stDelivered, NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		status, err := step.Verify(ctx, fc)
		if err != nil {
			return err
		}
		switch status {
		case paygate.StatusSucceeded:
			// fall through to the declared target
		case paygate.StatusFailed:
			paygate.ClearTicket(fc.Session)
			fc.Redirect(stPaying)
		default:
			fc.Stay()
			_, err = fc.Send(ctx, delivery.Message{Text: "The payment is not confirmed yet. Give it a moment and press the button again."})
			return err
		}
		return nil
	}})

	def.Enter(stDelivered, func(ctx context.Context, fc *flow.Ctx) error {
		path, err := renderCard(ctx, d, fc.Session)
		if err != nil {
			return err
		}
		_, err = fc.Send(ctx, delivery.Message{Text: "Here is your card. Congratulations!", PhotoPath: path})
		return err
	})
	def.Terminal(stDelivered)

	return def
}

// carousel wires one circular asset-browsing state: prev and next wrap
// around the list, select captures the current item and advances.
func carousel(def *flow.Definition, repo assets.Repo, st flow.State, kind assets.Kind, title, idxKey, idKey string, next flow.State) {
	def.Enter(st, func(ctx context.Context, fc *flow.Ctx) error {
		list, err := repo.List(ctx, kind)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("no %s available", kind)
		}
		i := flow.PageIndex(fc.Session, idxKey) % len(list)
		item := list[i]
		return fc.Prompt(ctx, delivery.Message{
			Text: fmt.Sprintf("%s\n\n%s (%d of %d)", title, item.Name, i+1, len(list)),
			Rows: [][]delivery.Button{
				delivery.Row(
					delivery.Btn("<", flow.ActionPrev, ""),
					delivery.Btn("Choose", flow.ActionSelect, ""),
					delivery.Btn(">", flow.ActionNext, ""),
				),
				delivery.Row(delivery.Btn("Back", flow.ActionBack, "")),
			},
		})
	})
	page := func(delta int) flow.Action {
		return func(ctx context.Context, fc *flow.Ctx) error {
			list, err := repo.List(ctx, kind)
			if err != nil {
				return err
			}
			flow.AdvancePage(fc.Session, idxKey, delta, len(list))
			fc.Redirect(st)
			return nil
		}
	}
	// Paging redirects back into the same state to re-render; NoPush keeps
	// "back" pointing at the previous step, not the previous page.
	def.On(st, flow.ActionNext, flow.Transition{NoPush: true, Do: page(1)})
	def.On(st, flow.ActionPrev, flow.Transition{NoPush: true, Do: page(-1)})
	def.On(st, flow.ActionSelect, flow.Transition{To: next, Do: func(ctx context.Context, fc *flow.Ctx) error {
		list, err := repo.List(ctx, kind)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("no %s available", kind)
		}
		i := flow.PageIndex(fc.Session, idxKey) % len(list)
		fc.Session.SetAttr(idKey, list[i].ID)
		return nil
	}})
}

func renderCard(ctx context.Context, d Deps, s *flow.Session) (string, error) {
	bg, okBg, err := d.Assets.Get(ctx, s.AttrInt64(attrBgID))
	if err != nil {
		return "", err
	}
	font, okFont, err := d.Assets.Get(ctx, s.AttrInt64(attrFontID))
	if err != nil {
		return "", err
	}
	color, okColor, err := d.Assets.Get(ctx, s.AttrInt64(attrColorID))
	if err != nil {
		return "", err
	}
	if !okBg || !okFont || !okColor {
		return "", fmt.Errorf("render card: chosen asset no longer exists")
	}
	return d.Renderer.Render(ctx, render.Request{
		Text:           s.AttrString(attrText),
		BackgroundPath: bg.Value,
		FontPath:       font.Value,
		Color:          color.Value,
		Placement:      s.AttrString(attrPlace),
	})
}

// startEnrichment sends a quick placeholder congratulation and replaces it
// in the background with a generated one. The job checks the session is
// still on the same generation before applying, so a user who cancelled or
// restarted is never overwritten.
func startEnrichment(ctx context.Context, d Deps, fc *flow.Ctx) {
	if d.Gen == nil || d.Enricher == nil || d.Gens == nil {
		return
	}
	userID := fc.Session.UserID
	category := fc.Session.AttrString(attrCategory)
	seed := fc.Session.AttrString(attrText)
	captured := fc.Session.Generation
	courier := fc.Courier

	ref, err := courier.Send(ctx, userID, delivery.Message{Text: "Composing a matching congratulation for you..."})
	if err != nil {
		logger.Warn(ctx, "cardflow", "card.placeholder_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return
	}

	d.Enricher.Go(userID, func(jobCtx context.Context) {
		prompt := fmt.Sprintf("Write a warm, short congratulation for a %s card. The sender wrote: %q", category, seed)
		text, err := d.Gen.Generate(jobCtx, "You write short heartfelt greeting-card congratulations.", []gen.Turn{{Role: gen.RoleUser, Text: prompt}})
		if err != nil {
			logger.Warn(jobCtx, "cardflow", "card.enrich_failed",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
			return
		}
		if d.Gens.ActiveGeneration(jobCtx, userID, Name) != captured {
			logger.Debug(jobCtx, "cardflow", "card.enrich_stale", slog.Int64("user_id", userID))
			return
		}
		if err := courier.Edit(jobCtx, ref, delivery.Message{Text: text}); err != nil {
			logger.Warn(jobCtx, "cardflow", "card.enrich_apply_failed",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	})
}
