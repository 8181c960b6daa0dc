package fleet

import (
	"errors"

	"github.com/buppyai/puppy-station/internal/store"
)

// DefaultFleet is provisioned on first start when the config names no agents.
var DefaultFleet = []store.NewAgent{
	{ID: "buppy", Name: "Buppy", Emoji: "🐶", Role: "Lead Developer", Model: "gpt-4o"},
	{ID: "kitty", Name: "Kitty", Emoji: "🐱", Role: "Code Reviewer", Model: "mistral-large"},
	{ID: "birdy", Name: "Birdy", Emoji: "🐦", Role: "Researcher", Model: "llama-3.1-70b"},
	{ID: "fishy", Name: "Fishy", Emoji: "🐟", Role: "Ops", Model: "gpt-4o-mini"},
}

func isConflict(err error) bool { return errors.Is(err, store.ErrConflict) }
