package models

import (
	"strings"
	"time"
)

// Company is a client organisation receiving quotes.
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name               string `gorm:"size:255;not null" json:"name"`
	RegistrationNumber string `gorm:"size:50" json:"registrationNumber,omitempty"`
	Email              string `gorm:"size:255" json:"email,omitempty"`
	Phone              string `gorm:"size:50" json:"phone,omitempty"`

	// Address
	Address    string `gorm:"size:500" json:"address,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	PostalCode string `gorm:"size:20" json:"postalCode,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`
}

// FullAddress joins the non-empty address lines.
func (c *Company) FullAddress() string {
	var lines []string
	if c.Address != "" {
		lines = append(lines, c.Address)
	}
	cityLine := c.PostalCode
	if c.City != "" {
		if cityLine != "" {
			cityLine += " "
		}
		cityLine += c.City
	}
	if cityLine != "" {
		lines = append(lines, cityLine)
	}
	if c.Country != "" {
		lines = append(lines, c.Country)
	}
	return strings.Join(lines, "\n")
}
