package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/occuhealth/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DemoCompanyName identifies the company created by Seed.
const DemoCompanyName = "Acme Logistique"

var baseHealthTests = []models.HealthTest{
	{Code: "AUDIO", Name: "Audiométrie", Description: "Dépistage auditif tonal", DefaultPrice: decimal.NewNullDecimal(decimal.RequireFromString("50.00"))},
	{Code: "SPIRO", Name: "Spirométrie", Description: "Exploration fonctionnelle respiratoire", DefaultPrice: decimal.NewNullDecimal(decimal.RequireFromString("65.00"))},
	{Code: "VISIO", Name: "Visiotest", Description: "Contrôle de l'acuité visuelle", DefaultPrice: decimal.NewNullDecimal(decimal.RequireFromString("35.00"))},
	{Code: "ECG", Name: "Électrocardiogramme", DefaultPrice: decimal.NewNullDecimal(decimal.RequireFromString("80.00"))},
	{Code: "VMP", Name: "Visite médicale périodique", DefaultPrice: decimal.NewNullDecimal(decimal.RequireFromString("1000.00"))},
}

// Seed inserts the demo company and the health-test catalog. Running it twice is a no-op.
func Seed(ctx context.Context, db *gorm.DB) (*models.Company, error) {
	db = db.WithContext(ctx)
	for _, ht := range baseHealthTests {
		var existing models.HealthTest
		err := db.Where("code = ?", ht.Code).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := db.Create(&ht).Error; err != nil {
				return nil, fmt.Errorf("seed health test %s: %w", ht.Code, err)
			}
		case err != nil:
			return nil, err
		}
	}

	var company models.Company
	err := db.Where("name = ?", DemoCompanyName).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		company = models.Company{
			Name:               DemoCompanyName,
			RegistrationNumber: "552 100 554 00021",
			Email:              "rh@acme-logistique.example",
			Phone:              "+33 4 72 00 00 00",
			Address:            "12 rue des Lilas",
			City:               "Lyon",
			PostalCode:         "69003",
			Country:            "France",
		}
		if err := db.Create(&company).Error; err != nil {
			return nil, fmt.Errorf("seed company: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	return &company, nil
}
