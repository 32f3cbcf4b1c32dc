package models

import "time"

// ContactLead is a stored contact-form submission. Never updated or deleted once created.
type ContactLead struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CompanyName string    `json:"companyName"`
	Message     *string   `json:"message,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ContactInput is the submitted form as the client sent it (no id, no timestamp).
// It is also the body forwarded to the automation webhook.
type ContactInput struct {
	Name        string  `json:"name" validate:"required"`
	Email       string  `json:"email" validate:"required,email"`
	CompanyName string  `json:"companyName" validate:"required"`
	Message     *string `json:"message,omitempty"`
}

// Input returns the lead's user-supplied fields.
func (l ContactLead) Input() ContactInput {
	return ContactInput{
		Name:        l.Name,
		Email:       l.Email,
		CompanyName: l.CompanyName,
		Message:     l.Message,
	}
}
