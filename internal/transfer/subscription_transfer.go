package transfer

import "time"

// SubscriptionEvent is the billing provider's webhook envelope. Only the
// fields the subscription service reads are declared.
type SubscriptionEvent struct {
	EventType string `json:"eventType"`
	Object    struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Customer struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"customer"`
		Product struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"product"`
		CurrentPeriodStartDate time.Time `json:"currentPeriodStartDate"`
		CurrentPeriodEndDate   time.Time `json:"currentPeriodEndDate"`
	} `json:"object"`
}
