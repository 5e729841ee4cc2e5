package payment

import (
	"fmt"
	"math/rand"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки. По умолчанию одобряет списания и возвраты и выдаёт
// референсы в формате симулированного провайдера.
type MockGateway struct {
	ChargeApproved bool
	ChargeReason   string
	ChargeErr      error
	RefundApproved bool
	RefundReason   string
	RefundErr      error

	ChargeCalls int
	RefundCalls int

	// ChargedAmounts и RefundedAmounts накапливают суммы фактических вызовов.
	ChargedAmounts  []int64
	RefundedAmounts []int64
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ChargeApproved: true,
		RefundApproved: true,
	}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) Charge(amountMinor int64, instrument domain.PaymentInstrument) (domain.PaymentResult, error) {
	m.ChargeCalls++
	if m.ChargeErr != nil {
		return domain.PaymentResult{}, m.ChargeErr
	}
	m.ChargedAmounts = append(m.ChargedAmounts, amountMinor)
	if !m.ChargeApproved {
		return domain.PaymentResult{Approved: false, Reason: m.ChargeReason}, nil
	}
	return domain.PaymentResult{Approved: true, Ref: simulatedRef()}, nil
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockGateway) Refund(amountMinor int64, originalRef string) (domain.PaymentResult, error) {
	m.RefundCalls++
	if m.RefundErr != nil {
		return domain.PaymentResult{}, m.RefundErr
	}
	m.RefundedAmounts = append(m.RefundedAmounts, amountMinor)
	if !m.RefundApproved {
		return domain.PaymentResult{Approved: false, Reason: m.RefundReason}, nil
	}
	return domain.PaymentResult{Approved: true, Ref: simulatedRef()}, nil
}

func simulatedRef() string {
	return fmt.Sprintf("SIMULATED%08d", rand.Intn(100000000))
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
