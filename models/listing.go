package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RemoteFile is the metadata of one file in the watched Drive folder.
// It only lives long enough to pick the file to fetch.
type RemoteFile struct {
	ID           string
	Name         string
	MimeType     string
	ModifiedTime time.Time
	Size         int64
}

// RawRow holds the cells of one CSV line, in header order.
type RawRow struct {
	Line  int
	Cells []string
}

// Cell returns the i-th cell and whether it exists in this row.
func (r RawRow) Cell(i int) (string, bool) {
	if i < 0 || i >= len(r.Cells) {
		return "", false
	}
	return r.Cells[i], true
}

// CarListing is one vehicle classified-ad snapshot as stored in the cars table.
// Nil pointers are NULL columns. Price keeps the source digits so no
// fractional precision is lost on the way to the numeric column.
type CarListing struct {
	bun.BaseModel `bun:"table:cars,alias:c"`

	AdID              string  `bun:"ad_id,pk,type:varchar(255)"`
	ActivatedAt       *string `bun:"activated_at,type:timestamptz"`
	CategoryID        *string `bun:"category_id,type:text"`
	UUID              *string `bun:"uuid,type:text"`
	HasWhatsappNumber bool    `bun:"has_whatsapp_number,notnull,default:false"`
	SeatingCapacity   *int64  `bun:"seating_capacity,type:integer"`
	EngineCapacity    *string `bun:"engine_capacity,type:text"`
	TargetMarket      *string `bun:"target_market,type:text"`
	IsPremium         bool    `bun:"is_premium,notnull,default:false"`

	Make  *string `bun:"make,type:text"`
	Model *string `bun:"model,type:text"`
	Trim  *string `bun:"trim,type:text"`
	URL   *string `bun:"url,type:text"`
	Title *string `bun:"title,type:text"`

	SellerName        *string `bun:"seller_name,type:text"`
	SellerPhoneNumber *string `bun:"seller_phone_number,type:text"`
	SellerType        *string `bun:"seller_type,type:text"`
	PostedOn          *string `bun:"posted_on,type:timestamptz"`

	Year       *int64  `bun:"year,type:integer"`
	Price      *string `bun:"price,type:numeric"`
	Kilometers *int64  `bun:"kilometers,type:bigint"`
	Doors      *int64  `bun:"doors,type:integer"`
	Cylinders  *int64  `bun:"cylinders,type:integer"`
	Horsepower *int64  `bun:"horsepower,type:integer"`

	Color               *string `bun:"color,type:text"`
	Warranty            *string `bun:"warranty,type:text"`
	BodyCondition       *string `bun:"body_condition,type:text"`
	MechanicalCondition *string `bun:"mechanical_condition,type:text"`
	FuelType            *string `bun:"fuel_type,type:text"`
	RegionalSpecs       *string `bun:"regional_specs,type:text"`
	BodyType            *string `bun:"body_type,type:text"`
	SteeringSide        *string `bun:"steering_side,type:text"`
	TransmissionType    *string `bun:"transmission_type,type:text"`
	Location            *string `bun:"location,type:text"`
	ImageURLs           *string `bun:"image_urls,type:text"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// TableStats summarises the cars table after a run.
type TableStats struct {
	Total    int
	TopMakes []MakeCount
}

// MakeCount is one row of the per-make breakdown.
type MakeCount struct {
	Make  string `bun:"make"`
	Count int    `bun:"count"`
}
