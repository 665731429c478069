package domain

import "time"

// Department is a municipal unit that owns a class of issues.
type Department struct {
	ID              string
	Name            string
	Code            string
	Description     *string
	Categories      []string
	DefaultSLAHours int
	EscalationEmail *string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HandlesCategory reports whether the department covers the category.
func (d *Department) HandlesCategory(category string) bool {
	for _, c := range d.Categories {
		if c == category {
			return true
		}
	}
	return false
}
