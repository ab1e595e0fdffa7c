package provider

import "errors"

var (
	// ErrMissingConfiguration means the call cannot be made until the
	// caller supplies required context (store id, card number). Never
	// retried automatically.
	ErrMissingConfiguration = errors.New("provider: missing configuration")

	// ErrTransportFailure covers network errors and provider 5xx.
	ErrTransportFailure = errors.New("provider: transport failure")

	// ErrCouponUnavailable is the domain error every failed clip is
	// translated to; the raw transport error never crosses the gateway.
	ErrCouponUnavailable = errors.New("provider: coupon unavailable")

	// ErrAuthenticationRequired means the operation needs tokens the
	// session does not have. The clip convenience path recovers by
	// starting sign-up instead of surfacing this.
	ErrAuthenticationRequired = errors.New("provider: authentication required")
)

// CouponUnavailableMessage is the fixed user-facing text published with
// every coupon.error event.
const CouponUnavailableMessage = "This coupon is no longer available or has reached its maximum usage."

func IsMissingConfiguration(err error) bool { return errors.Is(err, ErrMissingConfiguration) }

func IsCouponUnavailable(err error) bool { return errors.Is(err, ErrCouponUnavailable) }

func IsTransportFailure(err error) bool { return errors.Is(err, ErrTransportFailure) }
