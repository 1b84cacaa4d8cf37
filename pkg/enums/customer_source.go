package enums

// CustomerSource records how a CRM row was created.
type CustomerSource string

const (
	CustomerSourceCheckout CustomerSource = "checkout"
	CustomerSourceBackfill CustomerSource = "backfill"
)
