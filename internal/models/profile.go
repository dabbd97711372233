package models

import (
	"errors"
	"fmt"
	"strings"
)

type MaritalStatus string

const (
	Single  MaritalStatus = "Single"
	Married MaritalStatus = "Married"
)

// Profile bounds match the guide form.
const (
	MinAge    = 18
	MaxAge    = 120
	MinIncome = 0
	MaxIncome = 100000
)

var ErrInvalidProfile = errors.New("invalid profile")

// Profile holds the optional buyer attributes used to tailor guide answers.
// A nil field means the user did not supply it.
type Profile struct {
	Age           *int           `json:"age,omitempty"`
	MonthlyIncome *int           `json:"monthly_household_income,omitempty"`
	MaritalStatus *MaritalStatus `json:"marital_status,omitempty"`
}

func (p *Profile) IsEmpty() bool {
	return p == nil || (p.Age == nil && p.MonthlyIncome == nil && p.MaritalStatus == nil)
}

func (p *Profile) Validate() error {
	if p == nil {
		return nil
	}
	if p.Age != nil && (*p.Age < MinAge || *p.Age > MaxAge) {
		return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidProfile, MinAge, MaxAge)
	}
	if p.MonthlyIncome != nil && (*p.MonthlyIncome < MinIncome || *p.MonthlyIncome > MaxIncome) {
		return fmt.Errorf("%w: monthly household income must be between %d and %d", ErrInvalidProfile, MinIncome, MaxIncome)
	}
	if p.MaritalStatus != nil {
		if _, err := ParseMaritalStatus(string(*p.MaritalStatus)); err != nil {
			return err
		}
	}
	return nil
}

// Describe renders only the supplied fields, in the form
// "age: 35, monthly household income: 6000, marital status: Married".
// An empty profile describes as "".
func (p *Profile) Describe() string {
	if p.IsEmpty() {
		return ""
	}

	var parts []string
	if p.Age != nil {
		parts = append(parts, fmt.Sprintf("age: %d", *p.Age))
	}
	if p.MonthlyIncome != nil {
		parts = append(parts, fmt.Sprintf("monthly household income: %d", *p.MonthlyIncome))
	}
	if p.MaritalStatus != nil {
		parts = append(parts, fmt.Sprintf("marital status: %s", *p.MaritalStatus))
	}
	return strings.Join(parts, ", ")
}

func ParseMaritalStatus(s string) (MaritalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return Single, nil
	case "married":
		return Married, nil
	}
	return "", fmt.Errorf("%w: marital status must be Single or Married, got %q", ErrInvalidProfile, s)
}

// NewProfile builds a profile from raw optional values. Zero-value pointers
// are left unset.
func NewProfile(age, income *int, marital string) (*Profile, error) {
	p := &Profile{Age: age, MonthlyIncome: income}
	if strings.TrimSpace(marital) != "" {
		ms, err := ParseMaritalStatus(marital)
		if err != nil {
			return nil, err
		}
		p.MaritalStatus = &ms
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
