package services

import (
	"drive-csv-ingest/models"
)

// FieldKind selects how a cell is coerced before it is stored.
type FieldKind int

const (
	KindText FieldKind = iota
	KindInteger
	KindDecimal
	KindBoolean
	KindTimestamp
)

func (k FieldKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// FieldMapping ties one source column to one cars column.
// Adding a column to the feed means adding one entry to DefaultMappings.
type FieldMapping struct {
	Header string
	Column string
	Kind   FieldKind
	// Bits bounds KindInteger values to the column's integer width.
	Bits int

	setText func(*models.CarListing, *string)
	setInt  func(*models.CarListing, *int64)
	setBool func(*models.CarListing, bool)
}

func text(header, column string, set func(*models.CarListing, *string)) FieldMapping {
	return FieldMapping{Header: header, Column: column, Kind: KindText, setText: set}
}

// integer maps to a PostgreSQL integer (int4) column.
func integer(header, column string, set func(*models.CarListing, *int64)) FieldMapping {
	return FieldMapping{Header: header, Column: column, Kind: KindInteger, Bits: 32, setInt: set}
}

// bigint maps to a PostgreSQL bigint column.
func bigint(header, column string, set func(*models.CarListing, *int64)) FieldMapping {
	return FieldMapping{Header: header, Column: column, Kind: KindInteger, Bits: 64, setInt: set}
}

func decimal(header, column string, set func(*models.CarListing, *string)) FieldMapping {
	return FieldMapping{Header: header, Column: column, Kind: KindDecimal, setText: set}
}

func boolean(header, column string, set func(*models.CarListing, bool)) FieldMapping {
	return FieldMapping{Header: header, Column: column, Kind: KindBoolean, setBool: set}
}

func timestamp(header, column string, set func(*models.CarListing, *string)) FieldMapping {
	return FieldMapping{Header: header, Column: column, Kind: KindTimestamp, setText: set}
}

// DefaultMappings is the export layout of the classifieds sheet.
func DefaultMappings() []FieldMapping {
	return []FieldMapping{
		text("Ad ID", "ad_id", func(l *models.CarListing, v *string) {
			if v != nil {
				l.AdID = *v
			}
		}),
		timestamp("Activated At", "activated_at", func(l *models.CarListing, v *string) { l.ActivatedAt = v }),
		text("Category ID", "category_id", func(l *models.CarListing, v *string) { l.CategoryID = v }),
		text("UUID", "uuid", func(l *models.CarListing, v *string) { l.UUID = v }),
		boolean("Has Whatsapp Number", "has_whatsapp_number", func(l *models.CarListing, v bool) { l.HasWhatsappNumber = v }),
		integer("Seating Capacity", "seating_capacity", func(l *models.CarListing, v *int64) { l.SeatingCapacity = v }),
		text("Engine Capacity", "engine_capacity", func(l *models.CarListing, v *string) { l.EngineCapacity = v }),
		text("Target Market", "target_market", func(l *models.CarListing, v *string) { l.TargetMarket = v }),
		boolean("Is Premium", "is_premium", func(l *models.CarListing, v bool) { l.IsPremium = v }),
		text("Make", "make", func(l *models.CarListing, v *string) { l.Make = v }),
		text("Model", "model", func(l *models.CarListing, v *string) { l.Model = v }),
		text("Trim", "trim", func(l *models.CarListing, v *string) { l.Trim = v }),
		text("Url", "url", func(l *models.CarListing, v *string) { l.URL = v }),
		text("Title", "title", func(l *models.CarListing, v *string) { l.Title = v }),
		text("Dealer or seller name", "seller_name", func(l *models.CarListing, v *string) { l.SellerName = v }),
		text("Seller phone number", "seller_phone_number", func(l *models.CarListing, v *string) { l.SellerPhoneNumber = v }),
		text("Seller type", "seller_type", func(l *models.CarListing, v *string) { l.SellerType = v }),
		timestamp("Posted on", "posted_on", func(l *models.CarListing, v *string) { l.PostedOn = v }),
		integer("Year of the car", "year", func(l *models.CarListing, v *int64) { l.Year = v }),
		decimal("Price", "price", func(l *models.CarListing, v *string) { l.Price = v }),
		bigint("Kilometers", "kilometers", func(l *models.CarListing, v *int64) { l.Kilometers = v }),
		text("Color", "color", func(l *models.CarListing, v *string) { l.Color = v }),
		integer("Doors", "doors", func(l *models.CarListing, v *int64) { l.Doors = v }),
		integer("No. of Cylinders", "cylinders", func(l *models.CarListing, v *int64) { l.Cylinders = v }),
		text("Warranty", "warranty", func(l *models.CarListing, v *string) { l.Warranty = v }),
		text("Body condition", "body_condition", func(l *models.CarListing, v *string) { l.BodyCondition = v }),
		text("Mechanical condition", "mechanical_condition", func(l *models.CarListing, v *string) { l.MechanicalCondition = v }),
		text("Fuel type", "fuel_type", func(l *models.CarListing, v *string) { l.FuelType = v }),
		text("Regional specs", "regional_specs", func(l *models.CarListing, v *string) { l.RegionalSpecs = v }),
		text("Body type", "body_type", func(l *models.CarListing, v *string) { l.BodyType = v }),
		text("Steering side", "steering_side", func(l *models.CarListing, v *string) { l.SteeringSide = v }),
		integer("Horsepower", "horsepower", func(l *models.CarListing, v *int64) { l.Horsepower = v }),
		text("Transmission type", "transmission_type", func(l *models.CarListing, v *string) { l.TransmissionType = v }),
		text("Location of the car", "location", func(l *models.CarListing, v *string) { l.Location = v }),
		text("Image urls", "image_urls", func(l *models.CarListing, v *string) { l.ImageURLs = v }),
	}
}
