package domain

// PaymentInstrument — платёжные реквизиты, переданные при checkout.
// Ядро их не хранит, только передаёт провайдеру.
type PaymentInstrument struct {
	CardNumber     string
	ExpirationDate string
	CVV            string
	HolderName     string
	ZipCode        string
}

// Validate проверяет наличие обязательных реквизитов.
func (p *PaymentInstrument) Validate() []error {
	if p.CardNumber == "" || p.ExpirationDate == "" || p.CVV == "" {
		return []error{ErrInstrumentRequired}
	}
	return nil
}

// PaymentResult — ответ платёжного провайдера на charge/refund.
type PaymentResult struct {
	Approved bool
	// Ref — референс транзакции у провайдера; используется для возвратов.
	Ref string
	// Reason заполняется провайдером при отклонении.
	Reason string
}
