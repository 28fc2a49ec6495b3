package ideaflow

// Node is one step of the idea questionnaire. Nodes with options ask the
// next question; nodes without options are leaves whose prompt template
// seeds the generator together with every answer picked on the way down.
type Node struct {
	Prompt   string
	Options  []Option
	Template string
}

// Option is one answer button leading to the next node.
type Option struct {
	Label string
	Next  string
}

const rootNode = "root"

// tree is the whole questionnaire. One walker interprets it; adding a
// branch is a data change, not a new handler.
var tree = map[string]Node{
	rootNode: {
		Prompt: "What kind of idea do you need?",
		Options: []Option{
			{Label: "Gift", Next: "gift"},
			{Label: "Social post", Next: "post"},
			{Label: "Name", Next: "name"},
			{Label: "Business", Next: "business"},
		},
	},

	"gift": {
		Prompt: "Who is the gift for?",
		Options: []Option{
			{Label: "Partner", Next: "gift_budget"},
			{Label: "Friend", Next: "gift_budget"},
			{Label: "Parent", Next: "gift_budget"},
			{Label: "Colleague", Next: "gift_budget"},
		},
	},
	"gift_budget": {
		Prompt: "What's the budget?",
		Options: []Option{
			{Label: "Modest", Next: "gift_leaf"},
			{Label: "Generous", Next: "gift_leaf"},
			{Label: "No limit", Next: "gift_leaf"},
		},
	},
	"gift_leaf": {
		Template: "Suggest five thoughtful gift ideas. Context: %s.",
	},

	"post": {
		Prompt: "What is the post about?",
		Options: []Option{
			{Label: "Travel", Next: "post_tone"},
			{Label: "Food", Next: "post_tone"},
			{Label: "Milestone", Next: "post_tone"},
		},
	},
	"post_tone": {
		Prompt: "Pick a tone.",
		Options: []Option{
			{Label: "Playful", Next: "post_leaf"},
			{Label: "Sincere", Next: "post_leaf"},
			{Label: "Short and punchy", Next: "post_leaf"},
		},
	},
	"post_leaf": {
		Template: "Write three social media post drafts with fitting hashtags. Context: %s.",
	},

	"name": {
		Prompt: "A name for what?",
		Options: []Option{
			{Label: "Pet", Next: "name_leaf"},
			{Label: "Project", Next: "name_leaf"},
			{Label: "Team", Next: "name_leaf"},
		},
	},
	"name_leaf": {
		Template: "Propose ten distinctive names with a one-line rationale each. Context: %s.",
	},

	"business": {
		Prompt: "Which direction interests you?",
		Options: []Option{
			{Label: "Online service", Next: "business_leaf"},
			{Label: "Local shop", Next: "business_leaf"},
			{Label: "Side project", Next: "business_leaf"},
		},
	},
	"business_leaf": {
		Template: "Outline three small business ideas with first steps for each. Context: %s.",
	},
}
