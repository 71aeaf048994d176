package tracking

import (
	"testing"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func TestComputeCountdown(t *testing.T) {
	tests := []struct {
		name      string
		status    domain.OrderStatus
		assigned  *time.Time
		now       time.Time
		want      TimerStatus
		remaining time.Duration
	}{
		{"preparing waits", domain.OrderStatusPreparing, nil, t0.Add(time.Minute), TimerWaiting, -1},
		{"assigning waits", domain.OrderStatusAssigning, at(time.Minute), t0.Add(2 * time.Minute), TimerWaiting, -1},
		{"assigned counts from assignment", domain.OrderStatusAssigned, at(5 * time.Minute), t0.Add(10 * time.Minute), TimerActive, 25 * time.Minute},
		{"falls back to created_at", "Out_For_Delivery", nil, t0.Add(10*time.Minute + 500*time.Millisecond), TimerActive, 19*time.Minute + 59*time.Second},
		{"deadline anchors on assignment", domain.OrderStatusArrived, at(5 * time.Minute), t0.Add(34 * time.Minute), TimerActive, time.Minute},
		{"overtime past deadline", domain.OrderStatusArrived, at(5 * time.Minute), t0.Add(36 * time.Minute), TimerOvertime, 0},
		{"overtime at deadline", domain.OrderStatusAssigned, nil, t0.Add(30 * time.Minute), TimerOvertime, 0},
		{"delivered stops", domain.OrderStatusDelivered, at(time.Minute), t0.Add(time.Hour), TimerStopped, -1},
		{"cancelled waits", domain.OrderStatusCancelled, nil, t0, TimerWaiting, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ComputeCountdown(tt.status, t0, tt.assigned, tt.now)
			assert.Equal(t, tt.want, c.Status)
			if tt.remaining < 0 {
				assert.Nil(t, c.Remaining)
				return
			}
			require.NotNil(t, c.Remaining)
			assert.Equal(t, tt.remaining, *c.Remaining)
		})
	}
}

func TestComputeCountdown_Pure(t *testing.T) {
	now := t0.Add(12 * time.Minute)
	a := ComputeCountdown(domain.OrderStatusAssigned, t0, at(time.Minute), now)
	b := ComputeCountdown(domain.OrderStatusAssigned, t0, at(time.Minute), now)
	assert.Equal(t, a, b)
}

func TestCountdownDisplay(t *testing.T) {
	d := func(v time.Duration) *time.Duration { return &v }

	assert.Equal(t, "Waiting...", Countdown{Status: TimerWaiting}.Display())
	assert.Equal(t, "Soon", Countdown{Status: TimerOvertime, Remaining: d(0)}.Display())
	assert.Equal(t, "25:00", Countdown{Status: TimerActive, Remaining: d(25 * time.Minute)}.Display())
	assert.Equal(t, "04:09", Countdown{Status: TimerActive, Remaining: d(4*time.Minute + 9*time.Second)}.Display())
	assert.Equal(t, "00:00", Countdown{Status: TimerActive, Remaining: d(0)}.Display())

	assert.Equal(t, "Waiting for Assignment", Countdown{Status: TimerWaiting}.Label())
	assert.Equal(t, "Estimated Delivery", Countdown{Status: TimerActive}.Label())
	assert.Equal(t, "Delivering Soon", Countdown{Status: TimerOvertime}.Label())
	assert.Equal(t, "Delivered", Countdown{Status: TimerStopped}.Label())

	assert.True(t, Countdown{Status: TimerActive, Remaining: d(299 * time.Second)}.Urgent())
	assert.False(t, Countdown{Status: TimerActive, Remaining: d(300 * time.Second)}.Urgent())

	v := Countdown{Status: TimerOvertime, Remaining: d(0)}.View()
	require.NotNil(t, v.Seconds)
	assert.Zero(t, *v.Seconds)
	assert.NotEmpty(t, v.Notice)
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor("OUT_FOR_DELIVERY")
	assert.Equal(t, 4, p.Index)
	assert.Equal(t, "On the Way", p.Label)
	assert.InDelta(t, 5.0/7.0, p.Fraction, 1e-9)
	assert.True(t, p.Known)

	p = ProgressFor(domain.OrderStatusDelivered)
	assert.InDelta(t, 1.0, p.Fraction, 1e-9)

	p = ProgressFor("on_hold")
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, "on_hold", p.Label)
	assert.False(t, p.Known)
	assert.InDelta(t, 1.0/7.0, p.Fraction, 1e-9)
}
