package domain

import "time"

// Product is one entry of the trusted product catalog.
type Product struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenantId"`
	Brand        string  `json:"brand"`
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	Category     string  `json:"category"`
	SKU          string  `json:"sku,omitempty"`
	GTIN         string  `json:"gtin,omitempty"`
	MSRP         float64 `json:"msrp"`
	SerialPrefix string  `json:"serialPrefix,omitempty"`
	Image        string  `json:"image,omitempty"` // file name under the catalog directory
	Notes        string  `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// StarterProducts seeds an empty catalog so a fresh install has something
// to search against.
func StarterProducts() []*Product {
	return []*Product{
		{ID: "APP-AP2", Brand: "Apple", Name: "AirPods Pro 2", Model: "MTJV3", Category: "Electronics", SKU: "AP2-2023", GTIN: "0194253416123", MSRP: 249.00, SerialPrefix: "APP", Notes: "Gen 2"},
		{ID: "NKZ-P39", Brand: "Nike", Name: "Air Zoom Pegasus 39", Model: "DM0173-001", Category: "Shoes", SKU: "NZ-P39", GTIN: "196149738001", MSRP: 130.00, SerialPrefix: "NKZ", Notes: "Men"},
		{ID: "SMG-S23", Brand: "Samsung", Name: "Galaxy S23", Model: "SM-S911B/DS", Category: "Smartphone", SKU: "S23-128", GTIN: "8806094823487", MSRP: 799.00, SerialPrefix: "SMG", Notes: "128GB"},
		{ID: "SON-WF1000XM5", Brand: "Sony", Name: "WF-1000XM5", Model: "YY2953", Category: "Electronics", SKU: "XM5-BLK", GTIN: "4548736148886", MSRP: 299.99, SerialPrefix: "SNY"},
		{ID: "ADID-ULTRA4", Brand: "Adidas", Name: "Ultraboost 4.0 DNA", Model: "FY9121", Category: "Shoes", SKU: "UB4-DNA", MSRP: 180.00, SerialPrefix: "ADD"},
		{ID: "LV-NANO", Brand: "Louis Vuitton", Name: "Nano Speedy", Model: "M81085", Category: "Bags", SKU: "LV-NANO", MSRP: 1800.00, SerialPrefix: "LVS", Notes: "Luxury example"},
	}
}
