// Package ideaflow is the idea-generator wizard. A single data-driven
// walker interprets the questionnaire tree, collects the user's answers and
// hands them to the text generator at a leaf.
package ideaflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/gen"
)

// Name is the flow's namespace in the session store.
const Name = "idea"

const (
	stBrowsing flow.State = "browsing"
	stResult   flow.State = "showing_result"
)

// Session attribute keys owned by this flow:
// path, choices, leaf, regens.
const (
	attrPath    = "path"
	attrChoices = "choices"
	attrLeaf    = "leaf"
	attrRegens  = "regens"
)

const (
	actionRegen = "regen"
	actionAgain = "again"
)

// regenLimit caps regenerations per questionnaire pass. The counter lives
// in the session and resets with it when a new pass starts.
const regenLimit = 3

// Deps are the collaborators the idea flow drives.
type Deps struct {
	Gen gen.Generator
}

// New builds the idea flow definition.
func New(d Deps) *flow.Definition {
	def := flow.New(Name, stBrowsing)

	def.Enter(stBrowsing, func(ctx context.Context, fc *flow.Ctx) error {
		if fc.Event.Kind == flow.ActionBack {
			popChoice(fc.Session)
		}
		node := currentNode(fc.Session)
		rows := make([][]delivery.Button, 0, len(node.Options)+1)
		for i, opt := range node.Options {
			rows = append(rows, delivery.Row(delivery.Btn(opt.Label, flow.ActionSelect, strconv.Itoa(i))))
		}
		rows = append(rows, delivery.Row(
			delivery.Btn("Back", flow.ActionBack, ""),
			delivery.Btn("Cancel", flow.ActionMenu, ""),
		))
		return fc.Prompt(ctx, delivery.Message{Text: node.Prompt, Rows: rows})
	})

	def.On(stBrowsing, flow.ActionSelect, flow.Transition{To: stResult, Do: func(ctx context.Context, fc *flow.Ctx) error {
		node := currentNode(fc.Session)
		i, err := strconv.Atoi(fc.Event.Data)
		if err != nil || i < 0 || i >= len(node.Options) {
			fc.Stay()
			return nil
		}
		opt := node.Options[i]
		pushChoice(fc.Session, opt.Next, opt.Label)

		if tree[opt.Next].Template == "" {
			// Not a leaf yet: descend within the walker state.
			fc.Redirect(stBrowsing)
			return nil
		}
		fc.Session.SetAttr(attrLeaf, opt.Next)
		fc.Session.SetAttr(attrRegens, 0)
		return nil
	}})

	def.Enter(stResult, func(ctx context.Context, fc *flow.Ctx) error {
		leaf := tree[fc.Session.AttrString(attrLeaf)]
		prompt := fmt.Sprintf(leaf.Template, strings.Join(choices(fc.Session), ", "))
		text, err := d.Gen.Generate(ctx,
			"You are a creative assistant producing concise, usable ideas.",
			[]gen.Turn{{Role: gen.RoleUser, Text: prompt}})
		if err != nil {
			return err
		}
		fc.Session.SetAttr(attrRegens, fc.Session.AttrInt(attrRegens)+1)
		return fc.Prompt(ctx, delivery.Message{
			Text: text,
			Rows: [][]delivery.Button{
				delivery.Row(
					delivery.Btn("Regenerate", actionRegen, ""),
					delivery.Btn("New idea", actionAgain, ""),
				),
				delivery.Row(delivery.Btn("Done", flow.ActionMenu, "")),
			},
		})
	})

	def.On(stResult, actionRegen, flow.Transition{To: stResult, NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		if fc.Session.AttrInt(attrRegens) > regenLimit {
			fc.Stay()
			_, err := fc.Send(ctx, delivery.Message{Text: "That's the regeneration limit for this idea. Start a new one to continue."})
			return err
		}
		return nil
	}})
	def.On(stResult, actionAgain, flow.Transition{To: stBrowsing, NoPush: true, Do: func(ctx context.Context, fc *flow.Ctx) error {
		resetWalk(fc.Session)
		return nil
	}})

	return def
}

func currentNode(s *flow.Session) Node {
	path, _ := s.Attrs[attrPath].([]any)
	if len(path) == 0 {
		return tree[rootNode]
	}
	id, _ := path[len(path)-1].(string)
	return tree[id]
}

func choices(s *flow.Session) []string {
	raw, _ := s.Attrs[attrChoices].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func pushChoice(s *flow.Session, nodeID, label string) {
	path, _ := s.Attrs[attrPath].([]any)
	s.SetAttr(attrPath, append(path, nodeID))
	picks, _ := s.Attrs[attrChoices].([]any)
	s.SetAttr(attrChoices, append(picks, label))
}

func popChoice(s *flow.Session) {
	if path, _ := s.Attrs[attrPath].([]any); len(path) > 0 {
		s.SetAttr(attrPath, path[:len(path)-1])
	}
	if picks, _ := s.Attrs[attrChoices].([]any); len(picks) > 0 {
		s.SetAttr(attrChoices, picks[:len(picks)-1])
	}
}

func resetWalk(s *flow.Session) {
	s.DelAttr(attrPath)
	s.DelAttr(attrChoices)
	s.DelAttr(attrLeaf)
	s.DelAttr(attrRegens)
	s.Stack = nil
}
