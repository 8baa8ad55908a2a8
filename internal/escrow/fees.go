package escrow

import "github.com/shopspring/decimal"

// PaymentMethod is how the buyer funds the escrow.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodStripe       PaymentMethod = "stripe"
	MethodPaystack     PaymentMethod = "paystack"
	MethodFlutterwave  PaymentMethod = "flutterwave"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodWireTransfer PaymentMethod = "wire_transfer"
)

var (
	platformFeeRate   = decimal.RequireFromString("0.025")
	processingFeeRate = decimal.RequireFromString("0.015")
)

// paymentMethods maps each supported method to whether it carries a
// processing fee.
var paymentMethods = map[PaymentMethod]bool{
	MethodCard:         true,
	MethodStripe:       true,
	MethodPaystack:     true,
	MethodFlutterwave:  true,
	MethodMobileMoney:  true,
	MethodBankTransfer: false,
	MethodWireTransfer: false,
}

// Valid reports whether the method is supported.
func (m PaymentMethod) Valid() bool {
	_, ok := paymentMethods[m]
	return ok
}

// PaymentMethods returns the supported methods.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		MethodCard, MethodStripe, MethodPaystack, MethodFlutterwave,
		MethodMobileMoney, MethodBankTransfer, MethodWireTransfer,
	}
}

// CalculateFees computes the escrow fees for an amount. Each fee is rounded
// half-up to two decimal places before summing. Callers validate the method
// first; unknown methods are charged the platform fee only.
func CalculateFees(amount decimal.Decimal, method PaymentMethod) Fees {
	platform := amount.Mul(platformFeeRate).Round(2)
	processing := decimal.Zero
	if paymentMethods[method] {
		processing = amount.Mul(processingFeeRate).Round(2)
	}
	return Fees{
		PlatformFee:   platform,
		ProcessingFee: processing,
		TotalFees:     platform.Add(processing),
	}
}
