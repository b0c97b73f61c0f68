// internal/service/template.go
package service

import (
	"strings"

	"github.com/unclebandit/mailpress/internal/model"
)

// RenderTemplate substitutes {token} placeholders in a campaign template.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// personalization returns the token values for one contact.
func personalization(c *model.Contact) map[string]string {
	return map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"company":    c.Company,
		"email":      c.Email,
	}
}
