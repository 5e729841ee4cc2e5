package domain

// Address — почтовый адрес заказа (shipping или billing).
// Создаётся вместе с заказом и неизменен после сохранения.
type Address struct {
	FullName string
	Street   string
	City     string
	State    string
	ZipCode  string
	Country  string
}

// Validate проверяет обязательные поля адреса.
func (a *Address) Validate() []error {
	if a.FullName == "" || a.Street == "" || a.City == "" || a.State == "" || a.ZipCode == "" {
		return []error{ErrAddressIncomplete}
	}
	return nil
}
