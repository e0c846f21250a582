package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/matching"
)

func TestNewRandIsSeeded(t *testing.T) {
	var a, b matching.Random = app.NewRand(7, 11), app.NewRand(7, 11)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}

	x := []int{1, 2, 3, 4, 5, 6}
	y := []int{1, 2, 3, 4, 5, 6}
	a.Shuffle(len(x), func(i, j int) { x[i], x[j] = x[j], x[i] })
	b.Shuffle(len(y), func(i, j int) { y[i], y[j] = y[j], y[i] })
	assert.Equal(t, x, y)
}

func TestNewUsesWallClockInUTC(t *testing.T) {
	appCtx := app.New(nil, nil, nil)
	assert.Equal(t, "UTC", appCtx.Now().Location().String())
	assert.NotNil(t, appCtx.Rand)
}
