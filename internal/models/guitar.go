package models

// Guitar is a catalog entry the assistant can list and recommend.
type Guitar struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Shape       string  `json:"shape"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
}
