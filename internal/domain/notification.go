package domain

// EmailNotification is a rendered message ready for a delivery backend.
type EmailNotification struct {
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Text    string  `json:"text"`
	HTML    string  `json:"html,omitempty"`
	Purpose Purpose `json:"purpose"`
}
