package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/brojonat/chutulu/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

// fakeConn records publishes instead of talking to a server and delivers
// them synchronously to matching subscriptions.
type fakeConn struct {
	msgs       []published
	subs       map[string]nats.MsgHandler
	publishErr error
	subErr     error
	flushErr   error
	closed     bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	for pattern, cb := range c.subs {
		if pattern == subject || (strings.HasSuffix(pattern, ".*") && strings.HasPrefix(subject, strings.TrimSuffix(pattern, "*"))) {
			cb(&nats.Msg{Subject: subject, Data: data})
		}
	}
	return nil
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	if c.subs == nil {
		c.subs = make(map[string]nats.MsgHandler)
	}
	c.subs[subject] = cb
	return nil, nil
}

func (c *fakeConn) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("context has no deadline")
	}
	return c.flushErr
}

func (c *fakeConn) Close() { c.closed = true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFireTransaction() (*solana.FireTransaction, solana.Game) {
	player := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	tx := &solana.FireTransaction{
		Base64:             "AQID",
		Blockhash:          solanago.Hash{1, 2, 3},
		Player:             player,
		PlayerTokenAccount: solanago.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"),
		FeePayer:           solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
	}
	game := solana.Game{
		ProgramID: solanago.MustPublicKeyFromBase58("2a4NcnkF5zf14JQXHAv39AsRf7jMFj13wKmTL6ZcDQNd"),
		Mint:      solanago.MustPublicKeyFromBase58("goLdQwNaZToyavwkbuPJzTt5XPNR3H7WQBGenWtzPH3"),
	}
	return tx, game
}

func TestFromFireTransaction(t *testing.T) {
	tx, game := testFireTransaction()

	event := FromFireTransaction(tx, game)

	_, err := uuid.Parse(event.EventID)
	require.NoError(t, err)
	assert.Equal(t, tx.Player.String(), event.Player)
	assert.Equal(t, tx.PlayerTokenAccount.String(), event.PlayerTokenAccount)
	assert.Equal(t, tx.FeePayer.String(), event.FeePayer)
	assert.Equal(t, game.ProgramID.String(), event.ProgramID)
	assert.Equal(t, tx.Blockhash.String(), event.Blockhash)
	assert.False(t, event.BuiltAt.IsZero())
	assert.Equal(t, "actions.fire."+tx.Player.String(), event.Subject())

	other := FromFireTransaction(tx, game)
	assert.NotEqual(t, event.EventID, other.EventID)
}

func TestPublishFire(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, nil, testLogger())
	tx, game := testFireTransaction()
	event := FromFireTransaction(tx, game)

	require.NoError(t, p.PublishFire(context.Background(), event))

	require.Len(t, nc.msgs, 1)
	assert.Equal(t, event.Subject(), nc.msgs[0].subject)

	var decoded FireEvent
	require.NoError(t, json.Unmarshal(nc.msgs[0].data, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, event.Player, decoded.Player)
	assert.False(t, decoded.PublishedAt.IsZero())
	assert.NotContains(t, string(nc.msgs[0].data), tx.Base64, "the transaction itself is not broadcast")
}

func TestPublishFire_Errors(t *testing.T) {
	tx, game := testFireTransaction()

	p := newPublisher(&fakeConn{publishErr: errors.New("connection closed")}, nil, testLogger())
	err := p.PublishFire(context.Background(), FromFireTransaction(tx, game))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")

	p = newPublisher(&fakeConn{flushErr: errors.New("timeout")}, nil, testLogger())
	err = p.PublishFire(context.Background(), FromFireTransaction(tx, game))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to flush")
}

func TestSubscribeFire(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, nil, testLogger())
	tx, game := testFireTransaction()

	var forPlayer, forAll []*FireEvent
	unsubscribe, err := p.SubscribeFire(tx.Player.String(), func(e *FireEvent) { forPlayer = append(forPlayer, e) })
	require.NoError(t, err)
	_, err = p.SubscribeFire("", func(e *FireEvent) { forAll = append(forAll, e) })
	require.NoError(t, err)

	event := FromFireTransaction(tx, game)
	require.NoError(t, p.PublishFire(context.Background(), event))

	other := FromFireTransaction(tx, game)
	other.Player = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	require.NoError(t, p.PublishFire(context.Background(), other))

	require.Len(t, forPlayer, 1)
	assert.Equal(t, event.EventID, forPlayer[0].EventID)
	assert.Len(t, forAll, 2)

	require.NoError(t, nc.Publish(event.Subject(), []byte("not json")))
	assert.Len(t, forPlayer, 1, "undecodable messages are dropped")

	assert.NoError(t, unsubscribe())
}

func TestSubscribeFire_Error(t *testing.T) {
	p := newPublisher(&fakeConn{subErr: errors.New("permissions violation")}, nil, testLogger())

	_, err := p.SubscribeFire("", func(*FireEvent) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actions.fire.*")
}

func TestClose(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, nil, testLogger())
	require.NoError(t, p.Close())
	assert.True(t, nc.closed)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	tx, game := testFireTransaction()

	require.NoError(t, m.PublishFire(context.Background(), FromFireTransaction(tx, game)))
	assert.Len(t, m.GetPublishedEvents(), 1)
	assert.Len(t, m.GetPublishedEventsForPlayer(tx.Player.String()), 1)
	assert.Empty(t, m.GetPublishedEventsForPlayer("someone-else"))

	m.SetPublishError(errors.New("boom"))
	assert.Error(t, m.PublishFire(context.Background(), FromFireTransaction(tx, game)))
	assert.Len(t, m.GetPublishedEvents(), 1)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}

var _ Publisher = (*CorePublisher)(nil)
var _ Publisher = (*MockPublisher)(nil)
