package docgen

import (
	"time"

	"github.com/aethra/daicho/internal/config"
	"github.com/aethra/daicho/internal/models"
)

// StandardKeys lists the keys ProjectValues always provides, for the
// template upload screen. details.* keys depend on the category.
var StandardKeys = []string{
	"project.code", "project.name", "project.category", "project.status",
	"project.amount", "project.start_date", "project.due_date",
	"account.name", "account.address", "account.postal_code", "account.phone",
	"contact.name", "manager.name",
	"company.name", "company.address", "company.postal_code", "company.phone",
	"company.registration_number",
	"today",
}

// ProjectValues builds the placeholder values for a project. The project
// should have its Account, Contact and Manager loaded.
func ProjectValues(p *models.Project, company config.CompanyProfile, now time.Time) map[string]string {
	v := map[string]string{
		"project.code":                p.Code,
		"project.name":                p.Name,
		"project.category":            models.CategoryLabel(p.Category),
		"project.status":              models.StatusLabel(p.Status),
		"project.amount":              models.Yen(p.Amount),
		"project.start_date":          optionalDate(p.StartDate),
		"project.due_date":            optionalDate(p.DueDate),
		"company.name":                company.Name,
		"company.address":             company.Address,
		"company.postal_code":         company.PostalCode,
		"company.phone":               company.Phone,
		"company.registration_number": company.RegistrationNumber,
		"today":                       models.JapaneseDate(now),
	}
	if p.Account != nil {
		v["account.name"] = p.Account.Name
		v["account.address"] = p.Account.Address
		v["account.postal_code"] = p.Account.PostalCode
		v["account.phone"] = p.Account.Phone
	}
	if p.Contact != nil {
		v["contact.name"] = p.Contact.FullName()
		// individual customers stand in for the account
		if p.Account == nil {
			v["account.name"] = p.Contact.FullName()
			v["account.address"] = p.Contact.Address
			v["account.postal_code"] = p.Contact.PostalCode
			v["account.phone"] = p.Contact.Phone
		}
	}
	if p.Manager != nil {
		v["manager.name"] = p.Manager.FullName()
	}
	for key := range p.Details {
		v["details."+key] = p.Details.String(key)
	}
	return v
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return models.JapaneseDate(*t)
}
