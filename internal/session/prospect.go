package session

import (
	"strings"

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/internal/validation"
)

// validateProspect checks every present field.
func validateProspect(p conversation.ProspectInfo) error {
	if p.Name != "" {
		if res := validation.ValidateName(p.Name); !res.IsValid {
			return &ValidationError{Field: "name", Message: res.Error}
		}
	}
	if p.Email != "" {
		if res := validation.ValidateEmail(p.Email); !res.IsValid {
			return &ValidationError{Field: "email", Message: res.Error}
		}
	}
	if res := validation.ValidateCompany(p.Company); !res.IsValid {
		return &ValidationError{Field: "company", Message: res.Error}
	}
	if res := validation.ValidatePhone(p.Phone); !res.IsValid {
		return &ValidationError{Field: "phone", Message: res.Error}
	}
	if len([]rune(p.Title)) > validation.MaxNameLength {
		return &ValidationError{Field: "title", Message: "Title is too long"}
	}
	return nil
}

func trimProspect(p conversation.ProspectInfo) conversation.ProspectInfo {
	opts := validation.SanitizeOptions{MaxLength: validation.MaxNameLength, PreserveCase: true}
	return conversation.ProspectInfo{
		Name:    validation.SanitizeInput(p.Name, opts),
		Email:   strings.ToLower(strings.TrimSpace(p.Email)),
		Company: validation.SanitizeInput(p.Company, opts),
		Phone:   strings.TrimSpace(p.Phone),
		Title:   validation.SanitizeInput(p.Title, opts),
	}
}
