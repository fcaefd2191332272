package domain

// Identity holds the claims extracted from a verified third-party assertion.
type Identity struct {
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// DeliveryResult is what a notification gateway reports back. Gateways never
// return a bare error; a failed delivery is Success=false with Err set.
type DeliveryResult struct {
	Success bool
	Err     error
}
