package enums

import "fmt"

// OrderPaymentStatus is the local payment state of an order.
type OrderPaymentStatus string

const (
	OrderPaymentPending OrderPaymentStatus = "pending"
	OrderPaymentPaid    OrderPaymentStatus = "paid"
)

func (p OrderPaymentStatus) String() string {
	return string(p)
}

func (p OrderPaymentStatus) IsValid() bool {
	return p == OrderPaymentPending || p == OrderPaymentPaid
}

func ParseOrderPaymentStatus(value string) (OrderPaymentStatus, error) {
	status := OrderPaymentStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return status, nil
}

// GatewayPaymentStatus is the raw charge status reported by Asaas.
type GatewayPaymentStatus string

const (
	GatewayPending          GatewayPaymentStatus = "PENDING"
	GatewayConfirmed        GatewayPaymentStatus = "CONFIRMED"
	GatewayReceived         GatewayPaymentStatus = "RECEIVED"
	GatewayReceivedInCash   GatewayPaymentStatus = "RECEIVED_IN_CASH"
	GatewayOverdue          GatewayPaymentStatus = "OVERDUE"
	GatewayRefunded         GatewayPaymentStatus = "REFUNDED"
	GatewayRefundRequested  GatewayPaymentStatus = "REFUND_REQUESTED"
	GatewayAwaitingRiskScan GatewayPaymentStatus = "AWAITING_RISK_ANALYSIS"
)

// IsPaid reports whether the charge settled. Only CONFIRMED and RECEIVED count.
func (g GatewayPaymentStatus) IsPaid() bool {
	return g == GatewayConfirmed || g == GatewayReceived
}

func (g GatewayPaymentStatus) String() string {
	return string(g)
}
