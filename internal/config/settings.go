package config

import (
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemConfig represents a setting stored in database
type SystemConfig struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Key       string    `gorm:"uniqueIndex;not null;size:100"`
	Value     string    `gorm:"type:text"`
	Category  string    `gorm:"size:50;index"`
	IsSecret  bool
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for SystemConfig
func (SystemConfig) TableName() string {
	return "system_config"
}

// Setting keys
const (
	KeyCompanyName               = "COMPANY_NAME"
	KeyCompanyPostalCode         = "COMPANY_POSTAL_CODE"
	KeyCompanyAddress            = "COMPANY_ADDRESS"
	KeyCompanyPhone              = "COMPANY_PHONE"
	KeyCompanyRegistrationNumber = "COMPANY_REGISTRATION_NUMBER"
	KeyCompanyBankAccount        = "COMPANY_BANK_ACCOUNT"
	KeyInvoiceTaxRate            = "INVOICE_TAX_RATE"
)

// CompanyProfile is the issuing business printed on invoices and documents
type CompanyProfile struct {
	Name               string
	PostalCode         string
	Address            string
	Phone              string
	RegistrationNumber string
	BankAccount        string
}

// registration numbers for qualified invoices are "T" + 13 digits
var registrationNumberRe = regexp.MustCompile(`^T\d{13}$`)

// ValidRegistrationNumber reports whether s is empty or a well-formed
// qualified invoice issuer number
func ValidRegistrationNumber(s string) bool {
	return s == "" || registrationNumberRe.MatchString(s)
}

// SettingsService manages business settings with an in-memory cache
type SettingsService struct {
	db    *gorm.DB
	cache map[string]string
	mu    sync.RWMutex
}

// NewSettingsService creates a settings service and warms its cache
func NewSettingsService(db *gorm.DB) *SettingsService {
	svc := &SettingsService{
		db:    db,
		cache: make(map[string]string),
	}
	svc.loadCache()
	return svc
}

func (s *SettingsService) loadCache() {
	var configs []SystemConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range configs {
		s.cache[cfg.Key] = cfg.Value
	}
}

// Get returns a setting by key. DAICHO_<KEY> in the environment wins.
func (s *SettingsService) Get(key string) string {
	if envVal := os.Getenv("DAICHO_" + key); envVal != "" {
		return envVal
	}

	s.mu.RLock()
	val, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return val
	}

	var cfg SystemConfig
	if err := s.db.Where("key = ?", key).First(&cfg).Error; err == nil {
		s.mu.Lock()
		s.cache[key] = cfg.Value
		s.mu.Unlock()
		return cfg.Value
	}
	return ""
}

// GetWithDefault returns a setting or the default when unset
func (s *SettingsService) GetWithDefault(key, defaultValue string) string {
	if val := s.Get(key); val != "" {
		return val
	}
	return defaultValue
}

// GetInt returns a setting as int
func (s *SettingsService) GetInt(key string, defaultValue int) int {
	val := s.Get(key)
	if val == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(val); err == nil {
		return i
	}
	return defaultValue
}

// Set upserts a setting
func (s *SettingsService) Set(key, value, category string, isSecret bool) error {
	cfg := SystemConfig{
		ID:        uuid.New(),
		Key:       key,
		Value:     value,
		Category:  category,
		IsSecret:  isSecret,
		UpdatedAt: time.Now(),
	}

	err := s.db.Where("key = ?", key).
		Assign(map[string]interface{}{"value": value, "category": category, "is_secret": isSecret}).
		FirstOrCreate(&cfg).Error
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// Company returns the issuing business profile
func (s *SettingsService) Company() CompanyProfile {
	return CompanyProfile{
		Name:               s.Get(KeyCompanyName),
		PostalCode:         s.Get(KeyCompanyPostalCode),
		Address:            s.Get(KeyCompanyAddress),
		Phone:              s.Get(KeyCompanyPhone),
		RegistrationNumber: s.Get(KeyCompanyRegistrationNumber),
		BankAccount:        s.Get(KeyCompanyBankAccount),
	}
}

// SaveCompany stores every company field
func (s *SettingsService) SaveCompany(p CompanyProfile) error {
	fields := []struct{ key, value string }{
		{KeyCompanyName, p.Name},
		{KeyCompanyPostalCode, p.PostalCode},
		{KeyCompanyAddress, p.Address},
		{KeyCompanyPhone, p.Phone},
		{KeyCompanyRegistrationNumber, p.RegistrationNumber},
		{KeyCompanyBankAccount, p.BankAccount},
	}
	for _, f := range fields {
		if err := s.Set(f.key, f.value, "company", false); err != nil {
			return err
		}
	}
	return nil
}

// TaxRate returns the default consumption tax rate for new invoices
func (s *SettingsService) TaxRate() string {
	return s.GetWithDefault(KeyInvoiceTaxRate, "0.10")
}
