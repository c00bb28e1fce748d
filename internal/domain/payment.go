package domain

// PaymentMethod is the closed set of payment methods accepted by the ledger
// and by the cash closing report.
type PaymentMethod string

const (
	PaymentPix      PaymentMethod = "Pix"
	PaymentBoleto   PaymentMethod = "Boleto"
	PaymentDebito   PaymentMethod = "Débito"
	PaymentCredito  PaymentMethod = "Crédito"
	PaymentDinheiro PaymentMethod = "Dinheiro"
	PaymentOutro    PaymentMethod = "Outro"
)

// PaymentMethods lists every enumeration value in display order.
var PaymentMethods = []PaymentMethod{
	PaymentPix, PaymentBoleto, PaymentDebito, PaymentCredito, PaymentDinheiro, PaymentOutro,
}

// Valid reports whether p is one of the enumeration values.
func (p PaymentMethod) Valid() bool {
	for _, m := range PaymentMethods {
		if p == m {
			return true
		}
	}
	return false
}
