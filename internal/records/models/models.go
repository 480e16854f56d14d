package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
)

// BirthDateLayout is the only accepted birth date format.
const BirthDateLayout = "2006-01-02"

// ProtectedRecord is a patient record as stored. The four identifying fields
// only ever hold field-cipher envelopes.
type ProtectedRecord struct {
	ID                  id.RecordID   `gorm:"primaryKey;size:36"`
	ExternalID          string        `gorm:"uniqueIndex;size:32;not null"`
	IPPCiphertext       string        `gorm:"column:ipp_ciphertext;type:text;not null"`
	IPPIndex            string        `gorm:"column:ipp_index;size:64;index"`
	FirstNameCiphertext string        `gorm:"type:text;not null"`
	LastNameCiphertext  string        `gorm:"type:text;not null"`
	BirthDateCiphertext string        `gorm:"type:text;not null"`
	Sex                 string        `gorm:"size:1;not null"`
	CreatedBy           id.IdentityID `gorm:"size:36;not null;index"`
	CreatedAt           time.Time     `gorm:"index"`
}

func (ProtectedRecord) TableName() string { return "protected_records" }

// PatientInput is a record creation request.
type PatientInput struct {
	IPP       string `validate:"required,max=64"`
	FirstName string `validate:"required,max=128"`
	LastName  string `validate:"required,max=128"`
	BirthDate string `validate:"required,datetime=2006-01-02"`
	Sex       string `validate:"required,oneof=M F"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims every field and upper-cases the sex code.
func (in *PatientInput) Normalize() {
	in.IPP = strings.TrimSpace(in.IPP)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	in.Sex = strings.ToUpper(strings.TrimSpace(in.Sex))
}

// Validate checks field presence and formats, and that the birth date is not
// after today.
func (in *PatientInput) Validate(today time.Time) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return dErrors.New(dErrors.CodeValidation, fieldMessage(verrs[0]))
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid patient input")
	}
	born, _ := time.Parse(BirthDateLayout, in.BirthDate)
	y, m, d := today.Date()
	if born.After(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
		return dErrors.New(dErrors.CodeValidation, "birth date cannot be in the future")
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted YYYY-MM-DD", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Patient is the decrypted view of a ProtectedRecord.
type Patient struct {
	ExternalID string
	IPP        string
	FirstName  string
	LastName   string
	BirthDate  string
	Sex        string
	CreatedBy  id.IdentityID
	CreatedAt  time.Time
}

// UnreadableRecord marks a stored record whose fields could not be
// decrypted. It carries no patient data.
type UnreadableRecord struct {
	ExternalID string
	CreatedBy  id.IdentityID
	CreatedAt  time.Time
	Reason     string
}

// Listing is what a caller may see. Unreadable records are reported
// separately so one bad row never hides the rest.
type Listing struct {
	Records    []Patient
	Unreadable []UnreadableRecord
}
