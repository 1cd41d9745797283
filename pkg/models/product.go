package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Product is the catalog record. The order workflow only reads it.
type Product struct {
	ID     primitive.ObjectID `bson:"_id" json:"_id"`
	Name   string             `bson:"name" json:"name"`
	Price  float64            `bson:"price" json:"price"`
	Stock  int                `bson:"stock" json:"stock"`
	Images []string           `bson:"images" json:"images"`
	Sizes  []string           `bson:"sizes,omitempty" json:"sizes,omitempty"`
	Colors []string           `bson:"colors,omitempty" json:"colors,omitempty"`
}

// ProductRef is the display subset attached to line items on read.
type ProductRef struct {
	ID     string   `json:"_id"`
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

func (p *Product) Ref() *ProductRef {
	return &ProductRef{
		ID:     p.ID.Hex(),
		Name:   p.Name,
		Images: p.Images,
	}
}
