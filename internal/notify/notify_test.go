package notify

import (
	"context"
	"crypto/hmac"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	body      []byte
	event     string
	signature string
}

func newReceiver(t *testing.T, status int) (*httptest.Server, chan delivery) {
	t.Helper()
	ch := make(chan delivery, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- delivery{
			body:      body,
			event:     r.Header.Get("X-Disputes-Event"),
			signature: r.Header.Get("X-Disputes-Signature"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func waitDelivery(t *testing.T, ch chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
		return delivery{}
	}
}

func testEvent(et EventType) *Event {
	return &Event{
		ID:        "evt_test",
		Type:      et,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"disputeId": "dsp_test"},
	}
}

func TestDispatchSignsPayload(t *testing.T) {
	srv, ch := newReceiver(t, http.StatusOK)
	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID: "whk_1", PartyID: "cus_alice", URL: srv.URL,
		Secret: "topsecret", Events: AllEvents, Active: true,
		CreatedAt: time.Now(),
	}))

	d := NewDispatcher(store)
	require.NoError(t, d.DispatchToParty(context.Background(), "cus_alice", testEvent(EventDisputeOpened)))

	got := waitDelivery(t, ch)
	assert.Equal(t, string(EventDisputeOpened), got.event)
	want := Sign(got.body, "topsecret")
	assert.True(t, hmac.Equal([]byte(want), []byte(got.signature)))
}

func TestDispatchFiltersSubscriptions(t *testing.T) {
	srv, ch := newReceiver(t, http.StatusOK)
	store := NewMemoryStore()
	ctx := context.Background()

	// inactive
	require.NoError(t, store.Create(ctx, &Subscription{
		ID: "whk_1", PartyID: "cus_alice", URL: srv.URL,
		Events: AllEvents, Active: false, CreatedAt: time.Now(),
	}))
	// wrong event selection
	require.NoError(t, store.Create(ctx, &Subscription{
		ID: "whk_2", PartyID: "cus_alice", URL: srv.URL,
		Events: []EventType{EventDisputeResolved}, Active: true, CreatedAt: time.Now(),
	}))
	// other party
	require.NoError(t, store.Create(ctx, &Subscription{
		ID: "whk_3", PartyID: "acct_bob", URL: srv.URL,
		Events: AllEvents, Active: true, CreatedAt: time.Now(),
	}))

	d := NewDispatcher(store)
	require.NoError(t, d.DispatchToParty(ctx, "cus_alice", testEvent(EventDisputeOpened)))

	select {
	case <-ch:
		t.Fatal("no delivery expected")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDispatchRecordsFailure(t *testing.T) {
	srv, ch := newReceiver(t, http.StatusInternalServerError)
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Subscription{
		ID: "whk_1", PartyID: "cus_alice", URL: srv.URL,
		Events: AllEvents, Active: true, CreatedAt: time.Now(),
	}))

	d := NewDispatcher(store)
	require.NoError(t, d.DispatchToParty(ctx, "cus_alice", testEvent(EventPhaseChanged)))
	waitDelivery(t, ch)

	// the error lands on the subscription asynchronously
	require.Eventually(t, func() bool {
		sub, err := store.Get(ctx, "whk_1")
		return err == nil && sub.LastError != ""
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatchRecordsSuccess(t *testing.T) {
	srv, ch := newReceiver(t, http.StatusOK)
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Subscription{
		ID: "whk_1", PartyID: "cus_alice", URL: srv.URL,
		Events: AllEvents, Active: true, CreatedAt: time.Now(),
	}))

	d := NewDispatcher(store)
	require.NoError(t, d.DispatchToParty(ctx, "cus_alice", testEvent(EventDisputeResolved)))
	waitDelivery(t, ch)

	require.Eventually(t, func() bool {
		sub, err := store.Get(ctx, "whk_1")
		return err == nil && sub.LastSuccess != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub := &Subscription{
		ID: "whk_1", PartyID: "cus_alice", URL: "https://example.com/hook",
		Events: AllEvents, Active: true, CreatedAt: time.Now(),
	}
	require.NoError(t, store.Create(ctx, sub))

	got, err := store.Get(ctx, "whk_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_alice", got.PartyID)

	byParty, err := store.GetByParty(ctx, "cus_alice")
	require.NoError(t, err)
	assert.Len(t, byParty, 1)

	require.NoError(t, store.Delete(ctx, "whk_1"))
	_, err = store.Get(ctx, "whk_1")
	assert.ErrorIs(t, err, ErrNotFound)
}
