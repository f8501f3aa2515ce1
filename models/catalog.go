package models

// Category is reference data keyed by its unique name.
type Category struct {
	Name          string   `json:"name" bson:"name"`
	Subcategories []string `json:"subcategories" bson:"subcategories"`
}

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Order is what the storefront shows on its confirmation page. Item names and
// prices are snapshots taken at checkout.
type Order struct {
	ID        string      `json:"id" binding:"required"`
	SessionID string      `json:"sessionId" binding:"required"`
	Total     float64     `json:"total"`
	Items     []OrderItem `json:"items"`
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}
