package notify

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenter_UpsertByID(t *testing.T) {
	c := NewCenter(10)

	id := c.Loading("approve-1", "Approving USDT...")
	assert.Equal(t, "approve-1", id)

	c.Success("approve-1", "Approved")

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, LevelSuccess, list[0].Level)
	assert.Equal(t, "Approved", list[0].Message)
	assert.False(t, list[0].UpdatedAt.Before(list[0].CreatedAt))
}

func TestCenter_GeneratesID(t *testing.T) {
	c := NewCenter(10)

	id := c.Info("", "hello")
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	n, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, LevelInfo, n.Level)
}

func TestCenter_NewestFirstAndEviction(t *testing.T) {
	c := NewCenter(3)
	for i := 1; i <= 5; i++ {
		c.Info(fmt.Sprintf("n%d", i), "")
	}

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, "n5", list[0].ID)
	assert.Equal(t, "n3", list[2].ID)

	_, ok := c.Get("n1")
	assert.False(t, ok)

	// Updating moves an entry to the front
	c.Error("n3", "failed")
	assert.Equal(t, "n3", c.List()[0].ID)
}

func TestCenter_Dismiss(t *testing.T) {
	c := NewCenter(0)
	c.Info("a", "")
	c.Info("b", "")

	assert.True(t, c.Dismiss("a"))
	assert.False(t, c.Dismiss("a"))

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestCenter_Concurrent(t *testing.T) {
	c := NewCenter(DefaultCapacity)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := c.Loading(fmt.Sprintf("tx-%d", i), "pending")
			c.Success(id, "done")
		}(i)
	}
	wg.Wait()

	list := c.List()
	assert.Len(t, list, 20)
	for _, n := range list {
		assert.Equal(t, LevelSuccess, n.Level)
	}
}
