package models

// SellerOffer is one seller's listing for a product, taken from the
// other-offers widget.
type SellerOffer struct {
	SellerID     string `json:"seller_id"`
	SellerName   string `json:"seller_name"`
	SellerLink   string `json:"seller_link"`
	SKU          string `json:"sku"`
	Price        string `json:"price"`
	ProductLink  string `json:"product_link"`
	DeliveryDate string `json:"delivery_date,omitempty"`
}
