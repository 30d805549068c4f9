package types

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Terminal reports whether no later event may change a record in this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded
}

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
)
