package nats

import (
	"time"

	"github.com/brojonat/chutulu/service/solana"
	"github.com/google/uuid"
)

// SubjectPrefix is the subject namespace for fire events. Events for a player
// are published to "actions.fire.{player}".
const SubjectPrefix = "actions.fire"

// FireEvent represents a built fire transaction announced on NATS.
// It is emitted when the transaction is handed to the player, not when it
// lands on chain.
type FireEvent struct {
	EventID string `json:"event_id"`

	// Accounts
	Player             string `json:"player"`
	PlayerTokenAccount string `json:"player_token_account"`
	FeePayer           string `json:"fee_payer"`
	ProgramID          string `json:"program_id"`

	Blockhash string `json:"blockhash"`

	BuiltAt     time.Time `json:"built_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the NATS subject for the event.
func (e *FireEvent) Subject() string {
	return SubjectPrefix + "." + e.Player
}

// FromFireTransaction converts a built transaction to a FireEvent for publishing.
func FromFireTransaction(tx *solana.FireTransaction, game solana.Game) *FireEvent {
	return &FireEvent{
		EventID:            uuid.NewString(),
		Player:             tx.Player.String(),
		PlayerTokenAccount: tx.PlayerTokenAccount.String(),
		FeePayer:           tx.FeePayer.String(),
		ProgramID:          game.ProgramID.String(),
		Blockhash:          tx.Blockhash.String(),
		BuiltAt:            time.Now().UTC(),
	}
}
