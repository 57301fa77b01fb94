package isotp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time       { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func TestDeadlineUnarmedNeverExpires(t *testing.T) {
	d := newDeadline(&fakeClock{now: time.Unix(0, 0)})
	assert.False(t, d.expired())
	assert.Equal(t, time.Duration(0), d.remaining())
}

func TestDeadlineArmAndExpire(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	d := newDeadline(clock)
	d.arm(100 * time.Millisecond)
	assert.False(t, d.expired())
	assert.Equal(t, 100*time.Millisecond, d.remaining())

	clock.now = clock.now.Add(50 * time.Millisecond)
	assert.False(t, d.expired())
	assert.Equal(t, 50*time.Millisecond, d.remaining())

	clock.now = clock.now.Add(50 * time.Millisecond)
	assert.True(t, d.expired())
	assert.Equal(t, time.Duration(0), d.remaining())
}

func TestDeadlineRearmResetsWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	d := newDeadline(clock)
	d.arm(10 * time.Millisecond)
	clock.now = clock.now.Add(20 * time.Millisecond)
	assert.True(t, d.expired())

	d.arm(10 * time.Millisecond)
	assert.False(t, d.expired())
}
