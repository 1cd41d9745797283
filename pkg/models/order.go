package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit-card"
	PaymentDebitCard  PaymentMethod = "debit-card"
	PaymentNetBanking PaymentMethod = "net-banking"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Order is written once by the ledger. Only OrderStatus and PaymentStatus
// move afterwards, and only through the admin transitions.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	OrderNumber     string             `bson:"orderNumber" json:"orderNumber"`
	User            string             `bson:"user" json:"user"`
	Items           []LineItem         `bson:"items" json:"items"`
	ShippingAddress ShippingAddress    `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus   PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	OfferCode       string             `bson:"offerCode,omitempty" json:"offerCode,omitempty"`
	Discount        float64            `bson:"discount" json:"discount"`
	Subtotal        float64            `bson:"subtotal" json:"subtotal"`
	Total           float64            `bson:"total" json:"total"`
	OrderStatus     OrderStatus        `bson:"orderStatus" json:"orderStatus"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
	UserInfo        *OwnerRef          `bson:"-" json:"userInfo,omitempty"`
}

// LineItem snapshots name and price at purchase time so later catalog edits
// do not change what the customer paid.
type LineItem struct {
	Product       string      `bson:"product" json:"product" validate:"required"`
	Name          string      `bson:"name" json:"name"`
	Price         float64     `bson:"price" json:"price" validate:"gte=0"`
	Quantity      int         `bson:"quantity" json:"quantity" validate:"gte=1"`
	Size          string      `bson:"size,omitempty" json:"size,omitempty"`
	Color         string      `bson:"color,omitempty" json:"color,omitempty"`
	Customization string      `bson:"customization,omitempty" json:"customization,omitempty"`
	ProductInfo   *ProductRef `bson:"-" json:"productInfo,omitempty"`
}

type ShippingAddress struct {
	Street  string `bson:"street" json:"street" validate:"required"`
	City    string `bson:"city" json:"city" validate:"required"`
	State   string `bson:"state" json:"state" validate:"required"`
	Country string `bson:"country" json:"country" validate:"required"`
	ZipCode string `bson:"zipCode" json:"zipCode" validate:"required"`
	Phone   string `bson:"phone" json:"phone" validate:"required"`
}

// OrderDraft is what a customer submits. Subtotal, Discount and Total are the
// client's own figures; the ledger checks them against its quote when present.
type OrderDraft struct {
	Items           []LineItem      `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" validate:"required,oneof=cash credit-card debit-card net-banking"`
	OfferCode       string          `json:"offerCode"`
	Subtotal        *float64        `json:"subtotal,omitempty"`
	Discount        *float64        `json:"discount,omitempty"`
	Total           *float64        `json:"total,omitempty"`
}

// OrderFilter narrows the admin listing. Zero values match everything.
type OrderFilter struct {
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	Limit         int64
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentNetBanking:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentCompleted, PaymentFailed},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ProductIDs returns the distinct product ids referenced by the order, in item order.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.Product]; ok {
			continue
		}
		seen[item.Product] = struct{}{}
		ids = append(ids, item.Product)
	}
	return ids
}

// OwnedBy reports whether userID created the order.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.User == userID
}
