package flow

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/greetly/greetly/core/telegram/callbacks"
	tghelpers "github.com/greetly/greetly/core/telegram/helpers"
)

// HandleText feeds an inbound text message into the user's active flow. It
// satisfies the text router's FSM contract together with InProgress.
func (m *Mux) HandleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	_, err := m.Dispatch(ctx, c.Sender().ID, TextEvent(c.Text()))
	return err
}

// HandleCallback feeds a flow button press into the user's active flow.
// Payloads are "action" or "action:data" strings shared by every flow
// keyboard under the single flow callback key.
func (m *Mux) HandleCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	action, data := splitActionData(callbacks.CallbackPayload(c))
	if action == "" {
		return nil
	}
	_, err := m.Dispatch(ctx, c.Sender().ID, ActionEvent(action, data))
	return err
}

func splitActionData(payload string) (string, string) {
	parts := strings.SplitN(payload, ":", 2)
	action := strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		return action, parts[1]
	}
	return action, ""
}
