package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsmith/chasm/internal/domain"
	"github.com/chainsmith/chasm/internal/usecase"
)

func TestDashboard(t *testing.T) {
	t.Run("purge only removes the given mode", func(t *testing.T) {
		d := usecase.NewDashboard()
		d.Publish(usecase.DashboardEvent{Kind: usecase.EventBlock, Mode: domain.ModeLive, Block: 10})
		d.Publish(usecase.DashboardEvent{Kind: usecase.EventBlock, Mode: domain.ModeLocal, Block: 20})

		d.Purge(domain.ModeLocal)

		assert.Empty(t, d.Events(domain.ModeLocal))
		latest, ok := d.Latest(domain.ModeLive)
		require.True(t, ok)
		assert.Equal(t, uint64(10), latest.Block)
	})

	t.Run("data fetched before a purge is dropped", func(t *testing.T) {
		d := usecase.NewDashboard()
		epoch := d.Epoch(domain.ModeLocal)

		d.Purge(domain.ModeLocal)
		kept := d.PublishAt(epoch, usecase.DashboardEvent{Kind: usecase.EventBlock, Mode: domain.ModeLocal, Block: 5})

		assert.False(t, kept)
		assert.Empty(t, d.Events(domain.ModeLocal))
	})

	t.Run("subscribers receive new events", func(t *testing.T) {
		d := usecase.NewDashboard()
		ch, cancel := d.Subscribe()
		defer cancel()

		d.Publish(usecase.DashboardEvent{Kind: usecase.EventBlock, Mode: domain.ModeLive, Block: 1})

		ev := <-ch
		assert.Equal(t, uint64(1), ev.Block)
		assert.False(t, ev.At.IsZero())
	})

	t.Run("close ends subscriptions", func(t *testing.T) {
		d := usecase.NewDashboard()
		ch, cancel := d.Subscribe()

		d.Close()
		_, open := <-ch
		assert.False(t, open)
		cancel()

		d.Publish(usecase.DashboardEvent{Kind: usecase.EventBlock, Mode: domain.ModeLive})
		assert.Empty(t, d.Events(domain.ModeLive))
	})
}
