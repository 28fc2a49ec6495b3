// Package adminflow is the admin panel wizard: managing the asset library
// (backgrounds, fonts, colors) and composing broadcasts, sent now or
// scheduled for later.
package adminflow

import (
	"context"
	"fmt"
	"time"

	tghelpers "github.com/greetly/greetly/core/telegram/helpers"
	"github.com/greetly/greetly/internal/assets"
	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/sched"
	"github.com/greetly/greetly/internal/users"
)

// Name is the flow's namespace in the session store.
const Name = "admin"

const (
	stMenu       flow.State = "admin_menu"
	stAssetList  flow.State = "browsing_assets"
	stAssetName  flow.State = "naming_asset"
	stAssetValue flow.State = "entering_asset_value"
	stBcastText  flow.State = "composing_broadcast"
	stBcastWhen  flow.State = "choosing_broadcast_time"
	stBcastSent  flow.State = "broadcast_done"
)

// Session attribute keys owned by this flow:
// admin_kind, asset_idx, asset_name, bcast_text, bcast_at.
const (
	attrKind      = "admin_kind"
	attrAssetIdx  = "asset_idx"
	attrAssetName = "asset_name"
	attrBcastText = "bcast_text"
	attrBcastAt   = "bcast_at"
)

const (
	actionBroadcast = "broadcast"
	actionAdd       = "add"
	actionRemove    = "remove"
	actionNow       = "now"
)

// Deps are the collaborators the admin panel drives.
type Deps struct {
	Assets      *assets.Service
	Users       users.Repo
	Broadcaster *sched.Broadcaster
	Scheduler   *sched.Scheduler
}

// New builds the admin flow definition.
func New(d Deps) *flow.Definition {
	def := flow.New(Name, stMenu)

	def.Enter(stMenu, func(ctx context.Context, fc *flow.Ctx) error {
		rows := make([][]delivery.Button, 0, len(assets.Kinds)+2)
		for _, k := range assets.Kinds {
			rows = append(rows, delivery.Row(delivery.Btn("Manage "+string(k), flow.ActionSelect, string(k))))
		}
		rows = append(rows,
			delivery.Row(delivery.Btn("Broadcast", actionBroadcast, "")),
			delivery.Row(delivery.Btn("Close", flow.ActionMenu, "")),
		)
		return fc.Prompt(ctx, delivery.Message{Text: "Admin panel.", Rows: rows})
	})
	def.On(stMenu, flow.ActionSelect, flow.Transition{To: stAssetList, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrKind, fc.Event.Data)
		fc.Session.SetAttr(attrAssetIdx, 0)
		return nil
	}})
	def.On(stMenu, actionBroadcast, flow.Transition{To: stBcastText})

	def.Enter(stAssetList, func(ctx context.Context, fc *flow.Ctx) error {
		kind := assets.Kind(fc.Session.AttrString(attrKind))
		list, err := d.Assets.Repo.List(ctx, kind)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fc.Prompt(ctx, delivery.Message{
				Text: fmt.Sprintf("No %s yet.", kind),
				Rows: [][]delivery.Button{delivery.Row(
					delivery.Btn("Add", actionAdd, ""),
					delivery.Btn("Back", flow.ActionBack, ""),
				)},
			})
		}
		i := flow.PageIndex(fc.Session, attrAssetIdx) % len(list)
		item := list[i]
		return fc.Prompt(ctx, delivery.Message{
			Text: fmt.Sprintf("%s (%d of %d)\n%s", item.Name, i+1, len(list), item.Value),
			Rows: [][]delivery.Button{
				delivery.Row(
					delivery.Btn("<", flow.ActionPrev, ""),
					delivery.Btn(">", flow.ActionNext, ""),
				),
				delivery.Row(
					delivery.Btn("Add", actionAdd, ""),
					delivery.Btn("Remove", actionRemove, fmt.Sprintf("%d", item.ID)),
				),
				delivery.Row(delivery.Btn("Back", flow.ActionBack, "")),
			},
		})
	})
	page := func(delta int) flow.Action {
		return func(ctx context.Context, fc *flow.Ctx) error {
			kind := assets.Kind(fc.Session.AttrString(attrKind))
			list, err := d.Assets.Repo.List(ctx, kind)
			if err != nil {
				return err
			}
			flow.AdvancePage(fc.Session, attrAssetIdx, delta, len(list))
			fc.Redirect(stAssetList)
			return nil
		}
	}
	def.On(stAssetList, flow.ActionNext, flow.Transition{NoPush: true, Do: page(1)})
	def.On(stAssetList, flow.ActionPrev, flow.Transition{NoPush: true, Do: page(-1)})
	def.On(stAssetList, actionRemove, flow.Transition{NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		var id int64
		if _, err := fmt.Sscanf(fc.Event.Data, "%d", &id); err != nil {
			fc.Stay()
			return nil
		}
		if err := d.Assets.Remove(ctx, id); err != nil {
			return err
		}
		fc.Session.SetAttr(attrAssetIdx, 0)
		fc.Redirect(stAssetList)
		return nil
	}})
	def.On(stAssetList, actionAdd, flow.Transition{To: stAssetName})

	def.Enter(stAssetName, func(ctx context.Context, fc *flow.Ctx) error {
		return fc.Prompt(ctx, delivery.Message{
			Text: "Send the new item's name.",
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("Back", flow.ActionBack, ""))},
		})
	})
	def.On(stAssetName, flow.EventText, flow.Transition{To: stAssetValue, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrAssetName, fc.Event.Text)
		return nil
	}})

	def.Enter(stAssetValue, func(ctx context.Context, fc *flow.Ctx) error {
		kind := fc.Session.AttrString(attrKind)
		hint := "Send the file path."
		if kind == string(assets.KindColor) {
			hint = "Send the color as a hex code, e.g. #dc143c."
		}
		return fc.Prompt(ctx, delivery.Message{
			Text: hint,
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("Back", flow.ActionBack, ""))},
		})
	})
	def.On(stAssetValue, flow.EventText, flow.Transition{To: stAssetList, NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		_, err := d.Assets.Add(ctx, assets.Asset{
			Kind:  assets.Kind(fc.Session.AttrString(attrKind)),
			Name:  fc.Session.AttrString(attrAssetName),
			Value: fc.Event.Text,
		})
		if err != nil {
			return err
		}
		fc.Session.DelAttr(attrAssetName)
		// Unwind the naming steps so back from the list lands on the menu.
		fc.Session.Pop()
		fc.Session.Pop()
		return nil
	}})

	def.Enter(stBcastText, func(ctx context.Context, fc *flow.Ctx) error {
		return fc.Prompt(ctx, delivery.Message{
			Text: "Send the broadcast text.",
			Rows: [][]delivery.Button{delivery.Row(delivery.Btn("Back", flow.ActionBack, ""))},
		})
	})
	def.On(stBcastText, flow.EventText, flow.Transition{To: stBcastWhen, Do: func(ctx context.Context, fc *flow.Ctx) error {
		fc.Session.SetAttr(attrBcastText, fc.Event.Text)
		return nil
	}})

	def.Enter(stBcastWhen, func(ctx context.Context, fc *flow.Ctx) error {
		return fc.Prompt(ctx, delivery.Message{
			Text: "Send it now, or send a date like 2026-12-31 18:00 to schedule it.",
			Rows: [][]delivery.Button{delivery.Row(
				delivery.Btn("Send now", actionNow, ""),
				delivery.Btn("Back", flow.ActionBack, ""),
			)},
		})
	})
	def.On(stBcastWhen, actionNow, flow.Transition{To: stBcastSent})
	def.On(stBcastWhen, flow.EventText, flow.Transition{To: stBcastSent, Do: func(ctx context.Context, fc *flow.Ctx) error {
		at, ok := tghelpers.ParseFlexibleDate(fc.Event.Text)
		if !ok || !at.After(time.Now()) {
			fc.Stay()
			_, err := fc.Send(ctx, delivery.Message{Text: "I couldn't read that as a future date."})
			return err
		}
		fc.Session.SetAttr(attrBcastAt, at.Format(time.RFC3339))
		return nil
	}})

	def.Enter(stBcastSent, func(ctx context.Context, fc *flow.Ctx) error {
		ids, err := d.Users.IDs(ctx)
		if err != nil {
			return err
		}
		text := fc.Session.AttrString(attrBcastText)

		if raw := fc.Session.AttrString(attrBcastAt); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("schedule broadcast: %w", err)
			}
			if err := d.Broadcaster.ScheduleAll(ctx, d.Scheduler, ids, sched.LetterPayload{Text: text}, at); err != nil {
				return err
			}
			_, err = fc.Send(ctx, delivery.Message{
				Text: fmt.Sprintf("Broadcast scheduled for %s to %d recipients.", at.Format("2 January 2006 15:04"), len(ids)),
			})
			return err
		}

		sent, err := d.Broadcaster.Send(ctx, ids, delivery.Message{Text: text})
		report := fmt.Sprintf("Broadcast sent to %d of %d recipients.", sent, len(ids))
		if err != nil {
			report += "\nSome deliveries failed; see the log for details."
		}
		_, sendErr := fc.Send(ctx, delivery.Message{Text: report})
		return sendErr
	})
	def.Terminal(stBcastSent)

	return def
}
