package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreatesIdleSession(t *testing.T) {
	store := NewMemoryStore()

	var seen Session
	err := store.Update(context.Background(), 42, func(s *Session) error {
		seen = *s
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StateIdle, seen.State)
	require.NotNil(t, seen.Cart)
	assert.True(t, seen.Cart.IsEmpty())
}

func TestMemoryStoreMutationPersists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Update(ctx, 1, func(s *Session) error {
		s.State = StateViewingCart
		s.Cart.Add(7, 2)
		return nil
	})
	require.NoError(t, err)

	sess, ok := store.Peek(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, StateViewingCart, sess.State)
	assert.Equal(t, 2, sess.Cart.Qty(7))
}

func TestMemoryStorePeekAbsent(t *testing.T) {
	store := NewMemoryStore()
	_, ok := store.Peek(context.Background(), 99)
	assert.False(t, ok)
}

func TestMemoryStoreReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, 5, func(s *Session) error {
		s.State = StateBrowsingProducts
		return nil
	}))
	require.NoError(t, store.Reset(ctx, 5))

	_, ok := store.Peek(ctx, 5)
	assert.False(t, ok)
}

func TestMemoryStoreSerializesPerUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_ = store.Update(ctx, 1, func(s *Session) error {
					s.Page++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	sess, ok := store.Peek(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, workers*perWorker, sess.Page)
}

func TestMemoryStorePeekDuringUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_ = store.Update(ctx, 1, func(s *Session) error {
				s.Cart.Add(int64(i%10), 1)
				s.Page++
				return nil
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if sess, ok := store.Peek(ctx, 1); ok {
				_ = sess.Cart.Len()
			}
		}
	}()
	wg.Wait()

	sess, ok := store.Peek(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, iterations, sess.Page)
}

func TestMemoryStorePeekReturnsDetachedCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, 1, func(s *Session) error {
		s.Cart.Add(7, 1)
		return nil
	}))

	sess, ok := store.Peek(ctx, 1)
	require.True(t, ok)
	sess.Cart.Add(7, 100)
	sess.Cart.Add(8, 1)

	live, ok := store.Peek(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, 1, live.Cart.Qty(7), "peeked cart must not alias the stored one")
	assert.Zero(t, live.Cart.Qty(8))
}

func TestSessionCancelKeepsCart(t *testing.T) {
	s := New()
	s.State = StateAwaitingDeliveryAddress
	s.Address = "staged"
	s.PendingQty = 3
	s.Cart.Add(1, 2)

	s.Cancel()

	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Address)
	assert.Zero(t, s.PendingQty)
	assert.Equal(t, 2, s.Cart.Qty(1), "cancel must not touch cart lines")
}

func TestSessionJSONRoundTrip(t *testing.T) {
	catID := int64(12)
	s := New()
	s.State = StateBrowsingSubCategories
	s.SuperCategoryID = &catID
	s.Page = 3
	s.Greeted = true
	s.Cart.Add(4, 2)

	raw, err := json.Marshal(&s)
	require.NoError(t, err)

	var back Session
	require.NoError(t, json.Unmarshal(raw, &back))
	back.EnsureCart()

	assert.Equal(t, s.State, back.State)
	require.NotNil(t, back.SuperCategoryID)
	assert.Equal(t, catID, *back.SuperCategoryID)
	assert.Equal(t, 3, back.Page)
	assert.True(t, back.Greeted)
	assert.Equal(t, 2, back.Cart.Qty(4))
}
