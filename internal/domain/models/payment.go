package models

// PaymentRequest тело запроса к платёжному шлюзу.
// Порядок полей совпадает с порядком, в котором считается HashCheck.
type PaymentRequest struct {
	SiteCode             string `json:"SiteCode"`
	CountryCode          string `json:"CountryCode"`
	CurrencyCode         string `json:"CurrencyCode"`
	Amount               string `json:"Amount"`
	TransactionReference string `json:"TransactionReference"`
	BankReference        string `json:"BankReference"`
	CancelURL            string `json:"CancelUrl"`
	ErrorURL             string `json:"ErrorUrl"`
	SuccessURL           string `json:"SuccessUrl"`
	NotifyURL            string `json:"NotifyUrl"`
	IsTest               bool   `json:"IsTest"`
	HashCheck            string `json:"HashCheck"`
}

// PaymentStatus статус из уведомления шлюза
type PaymentStatus string

const (
	PaymentStatusComplete             PaymentStatus = "Complete"
	PaymentStatusCancelled            PaymentStatus = "Cancelled"
	PaymentStatusError                PaymentStatus = "Error"
	PaymentStatusAbandoned            PaymentStatus = "Abandoned"
	PaymentStatusPendingInvestigation PaymentStatus = "PendingInvestigation"
)

// IsFailure true для статусов, после которых заказ отменяется с возвратом остатков
func (s PaymentStatus) IsFailure() bool {
	switch s {
	case PaymentStatusCancelled, PaymentStatusError, PaymentStatusAbandoned, PaymentStatusPendingInvestigation:
		return true
	}
	return false
}

// PaymentNotification серверное уведомление шлюза (form-urlencoded)
type PaymentNotification struct {
	SiteCode             string
	TransactionID        string
	TransactionReference string `validate:"required,uuid"`
	Amount               string
	Status               PaymentStatus `validate:"required"`
	Optional1            string
	Optional2            string
	Optional3            string
	Optional4            string
	Optional5            string
	CurrencyCode         string
	IsTest               string
	StatusMessage        string
	Hash                 string
}
