// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int64) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrContactNotFound struct {
	Email string
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("contact %q not found", e.Email)
}

func NewContactNotFound(email string) error {
	return &ErrContactNotFound{Email: email}
}

// ErrInvalidTransition is returned when a campaign status change is not
// allowed from its current state.
type ErrInvalidTransition struct {
	CampaignID int64
	To         string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d cannot transition to %s from its current status", e.CampaignID, e.To)
}

func NewInvalidTransition(id int64, to string) error {
	return &ErrInvalidTransition{CampaignID: id, To: to}
}
