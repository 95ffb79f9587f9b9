package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID            uuid.UUID
	Name          string
	Email         string
	Phone         string
	Address       string
	IDProofType   string
	IDProofNumber string
	CreatedAtUtc  time.Time
	UpdatedAtUtc  time.Time
}

// CustomerInfo carries the contact fields supplied with a booking.
type CustomerInfo struct {
	Name          string
	Email         string
	Phone         string
	Address       string
	IDProofType   string
	IDProofNumber string
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (c CustomerInfo) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("customer name is required")
	}
	email := NormalizeEmail(c.Email)
	if email == "" || !strings.Contains(email, "@") {
		return NewValidationError("customer email is invalid")
	}
	return nil
}

// Apply overwrites the name and any non-empty optional field.
func (c *Customer) Apply(info CustomerInfo) {
	c.Name = info.Name
	if info.Phone != "" {
		c.Phone = info.Phone
	}
	if info.Address != "" {
		c.Address = info.Address
	}
	if info.IDProofType != "" {
		c.IDProofType = info.IDProofType
	}
	if info.IDProofNumber != "" {
		c.IDProofNumber = info.IDProofNumber
	}
}

func (c *Customer) Snapshot() map[string]any {
	return map[string]any{
		"name":            c.Name,
		"email":           c.Email,
		"phone":           c.Phone,
		"address":         c.Address,
		"id_proof_type":   c.IDProofType,
		"id_proof_number": c.IDProofNumber,
	}
}
