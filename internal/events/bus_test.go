package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.Subscribe(func(e Event) { order = append(order, "first") })
	bus.Subscribe(func(e Event) { order = append(order, "second") })
	bus.Subscribe(func(e Event) { order = append(order, "third") })

	bus.PublishIdentityChanged("sign-in")

	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBusFillsIDAndTimestamp(t *testing.T) {
	bus := NewBus(nil)

	var got Event
	bus.Subscribe(func(e Event) { got = e })

	bus.PublishCouponError("offer-1", "This coupon is no longer available or has reached its maximum usage.")

	require.Equal(t, CouponError, got.Type)
	require.NotEmpty(t, got.ID)
	require.False(t, got.At.IsZero())
	require.Equal(t, "offer-1", got.Data["offer_id"])
}
