package birthday

import (
	"errors"
	"fmt"
	"time"
)

// Classes lists the class labels the dashboard offers.
var Classes = []string{"CSE", "AIML", "ECE", "EEE"}

// Sections lists the section labels the dashboard offers.
var Sections = []string{"A", "B", "C", "D"}

// PlaceholderPhoto is shown for records without a photo.
const PlaceholderPhoto = "https://via.placeholder.com/300x400?text=No+Image"

// Field names as they appear on the wire and in forms.
const (
	FieldName             = "name"
	FieldClass            = "class"
	FieldSection          = "section"
	FieldHallTicketNumber = "hallTicketNumber"
	FieldPhoto            = "photo"
	FieldBirthDate        = "birthDate"
)

// ErrUnknownField is returned when a draft field name is not recognised.
var ErrUnknownField = errors.New("unknown draft field")

// Record is a birthday entry as returned by the backend.
type Record struct {
	ID               string `json:"_id"`
	Name             string `json:"name"`
	Class            string `json:"class"`
	Section          string `json:"section"`
	HallTicketNumber string `json:"hallTicketNumber"`
	Photo            string `json:"photo,omitempty"`
	BirthDate        string `json:"birthDate"`
}

// Draft is the unsaved form state for a record being created. It has no ID;
// the backend assigns one on creation.
type Draft struct {
	Name             string `json:"name"`
	Class            string `json:"class"`
	Section          string `json:"section"`
	HallTicketNumber string `json:"hallTicketNumber"`
	Photo            string `json:"photo"`
	BirthDate        string `json:"birthDate"`
}

// Set merges a single field into the draft by its wire name.
func (d *Draft) Set(field, value string) error {
	switch field {
	case FieldName:
		d.Name = value
	case FieldClass:
		d.Class = value
	case FieldSection:
		d.Section = value
	case FieldHallTicketNumber:
		d.HallTicketNumber = value
	case FieldPhoto:
		d.Photo = value
	case FieldBirthDate:
		d.BirthDate = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Missing returns the wire names of required fields that are still empty.
// Whitespace counts as present, as it does for a required form input. Photo is
// optional.
func (d Draft) Missing() []string {
	var out []string
	if d.Name == "" {
		out = append(out, FieldName)
	}
	if d.Class == "" {
		out = append(out, FieldClass)
	}
	if d.Section == "" {
		out = append(out, FieldSection)
	}
	if d.HallTicketNumber == "" {
		out = append(out, FieldHallTicketNumber)
	}
	if d.BirthDate == "" {
		out = append(out, FieldBirthDate)
	}
	return out
}

// IsEmpty reports whether every field is blank.
func (d Draft) IsEmpty() bool {
	return d == Draft{}
}

// BirthDay parses BirthDate. The backend may return a bare date or a full
// timestamp, so both layouts are accepted.
func (r Record) BirthDay() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, r.BirthDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DisplayDate formats the birth date for cards, falling back to the raw value.
func (r Record) DisplayDate() string {
	if t, ok := r.BirthDay(); ok {
		return t.UTC().Format("2 Jan 2006")
	}
	return r.BirthDate
}

// PhotoOrPlaceholder returns the record photo or the placeholder image.
func (r Record) PhotoOrPlaceholder() string {
	if r.Photo == "" {
		return PlaceholderPhoto
	}
	return r.Photo
}
