package shop

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplenisherBounds(t *testing.T) {
	draw := Replenisher(rand.New(rand.NewSource(42)))

	deliveries := 0
	for i := 0; i < 5000; i++ {
		inc := draw()
		if inc == 0 {
			continue
		}
		deliveries++
		require.GreaterOrEqual(t, inc, 5)
		require.LessOrEqual(t, inc, 30)
	}
	// p=0.6, so roughly 3000 of 5000. Loose bounds, the draw is random.
	require.Greater(t, deliveries, 2500)
	require.Less(t, deliveries, 3500)
}
