package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanlab/boardsync/internal/app/domain/board"
	"github.com/kanbanlab/boardsync/internal/app/services/cards"
	"github.com/kanbanlab/boardsync/internal/app/services/lists"
	"github.com/kanbanlab/boardsync/internal/app/storage/memory"
)

func newDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	store := memory.New()
	b, err := store.CreateBoard(context.Background(), board.Board{
		WorkspaceID: "ws-1",
		OwnerID:     "owner",
		Title:       "board",
	})
	require.NoError(t, err)

	listSvc := lists.New(store, store, store, nil)
	cardSvc := cards.New(store, store, nil)
	return NewDispatcher(listSvc, cardSvc, nil), b.ID
}

func decodeEvent(t *testing.T, payload []byte) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	return ev
}

func TestDispatchCreateList(t *testing.T) {
	d, boardID := newDispatcher(t)

	raw := []byte(`{"action":"create_list","board_id":"` + boardID + `","list_name":"Todo","user_id":"owner"}`)
	out := d.Dispatch(context.Background(), boardID, raw)

	require.Nil(t, out.Reply)
	require.NotNil(t, out.Broadcast)
	assert.Equal(t, boardID, out.BoardID)

	ev := decodeEvent(t, out.Broadcast)
	assert.Equal(t, EventListCreated, ev.Action)
	require.Len(t, ev.List, 1)
	assert.Equal(t, "Todo", ev.List[0].Title)
	assert.Equal(t, 1, ev.List[0].Position)
	assert.NotNil(t, ev.List[0].Cards, "cards must encode as an array")
}

func TestDispatchInheritsSessionBoard(t *testing.T) {
	d, boardID := newDispatcher(t)

	out := d.Dispatch(context.Background(), boardID, []byte(`{"action":"create_list","list_name":"Todo","user_id":"owner"}`))
	require.Nil(t, out.Reply)
	assert.Equal(t, boardID, out.BoardID)
}

func TestDispatchListMovedCamelCase(t *testing.T) {
	d, boardID := newDispatcher(t)
	ctx := context.Background()

	var listIDs []string
	for _, name := range []string{"a", "b", "c"} {
		out := d.Dispatch(ctx, boardID, []byte(`{"action":"create_list","list_name":"`+name+`","user_id":"owner"}`))
		require.NotNil(t, out.Broadcast)
		ev := decodeEvent(t, out.Broadcast)
		listIDs = append(listIDs, ev.List[len(ev.List)-1].ID)
	}

	raw := []byte(`{"action":"list_moved","listId":"` + listIDs[0] + `","newPosition":3}`)
	out := d.Dispatch(ctx, boardID, raw)
	require.Nil(t, out.Reply)

	ev := decodeEvent(t, out.Broadcast)
	assert.Equal(t, EventListMoved, ev.Action)
	titles := []string{ev.List[0].Title, ev.List[1].Title, ev.List[2].Title}
	assert.Equal(t, []string{"b", "c", "a"}, titles)
}

func TestDispatchCardLifecycle(t *testing.T) {
	d, boardID := newDispatcher(t)
	ctx := context.Background()

	out := d.Dispatch(ctx, boardID, []byte(`{"action":"create_list","list_name":"todo","user_id":"owner"}`))
	listID := decodeEvent(t, out.Broadcast).List[0].ID

	out = d.Dispatch(ctx, boardID, []byte(`{"action":"create_card","list_id":"`+listID+`","card_title":"task"}`))
	ev := decodeEvent(t, out.Broadcast)
	assert.Equal(t, EventCardCreated, ev.Action)
	require.Len(t, ev.List[0].Cards, 1)
	cardID := ev.List[0].Cards[0].ID

	out = d.Dispatch(ctx, boardID, []byte(`{"action":"update_card","card_id":"`+cardID+`","updated_data":{"title":"renamed"}}`))
	ev = decodeEvent(t, out.Broadcast)
	assert.Equal(t, EventCardUpdated, ev.Action)
	assert.Equal(t, "renamed", ev.List[0].Cards[0].Title)

	out = d.Dispatch(ctx, boardID, []byte(`{"action":"delete_card","card_id":"`+cardID+`"}`))
	ev = decodeEvent(t, out.Broadcast)
	assert.Equal(t, EventCardDeleted, ev.Action)
	assert.Empty(t, ev.List[0].Cards)
}

func TestDispatchErrorGoesOnlyToOriginator(t *testing.T) {
	d, boardID := newDispatcher(t)

	out := d.Dispatch(context.Background(), boardID, []byte(`{"action":"delete_list","list_id":"nope","user_id":"owner"}`))
	require.Nil(t, out.Broadcast)
	require.NotNil(t, out.Reply)

	var em ErrorMessage
	require.NoError(t, json.Unmarshal(out.Reply, &em))
	assert.Contains(t, em.Error, "not found")
}

func TestDispatchUnknownActionDropped(t *testing.T) {
	d, boardID := newDispatcher(t)

	out := d.Dispatch(context.Background(), boardID, []byte(`{"action":"explode"}`))
	assert.Nil(t, out.Broadcast)
	assert.Nil(t, out.Reply)

	out = d.Dispatch(context.Background(), boardID, []byte(`{"board_id":"x"}`))
	assert.Nil(t, out.Broadcast)
	assert.Nil(t, out.Reply)
}

func TestDispatchMalformedMessage(t *testing.T) {
	d, boardID := newDispatcher(t)

	out := d.Dispatch(context.Background(), boardID, []byte(`{not json`))
	assert.Nil(t, out.Broadcast)
	assert.NotNil(t, out.Reply)
}
