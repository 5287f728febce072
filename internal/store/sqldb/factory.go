package sqldb

import (
	"github.com/nextlevelbuilder/govoice/internal/store"
)

// New wires every store over a single database handle.
func New(db *DB) *store.Stores {
	return &store.Stores{
		Users:           NewUserStore(db),
		Sessions:        NewSessionStore(db),
		Conversations:   NewConversationStore(db),
		FoodEntries:     NewFoodEntryStore(db),
		Agents:          NewAgentStore(db),
		IntentResponses: NewIntentResponseStore(db),
	}
}
