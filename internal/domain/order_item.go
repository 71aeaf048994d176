package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderItemPayload is the normalized item sent with a draft order.
type OrderItemPayload struct {
	Type        ServiceType `json:"type"`
	ProductID   string      `json:"product_id,omitempty"`
	Quantity    int         `json:"quantity,omitempty"`
	ServiceData any         `json:"service_data,omitempty"`
}

type PorterServiceData struct {
	PickupAddress     Address     `json:"pickup_address"`
	DeliveryAddress   Address     `json:"delivery_address"`
	Dimensions        *Dimensions `json:"dimensions"`
	WeightCategory    string      `json:"weight_category"`
	Phone             string      `json:"phone"`
	EstimatedDistance float64     `json:"estimated_distance"`
	EstimatedCost     float64     `json:"estimated_cost,omitempty"`
	Notes             string      `json:"notes"`
	IsUrgent          bool        `json:"is_urgent"`
}

type PrintoutServiceData struct {
	PrintType    string   `json:"print_type"`
	Copies       int      `json:"copies"`
	Pages        int      `json:"pages"`
	Color        bool     `json:"color"`
	PaperSize    string   `json:"paper_size"`
	Notes        string   `json:"notes"`
	DocumentURLs []string `json:"document_urls,omitempty"`
	PhotoURLs    []string `json:"photo_urls,omitempty"`
}

// OrderItem is an item of a placed order as reported by the backend. Exactly
// one of Product, Porter or Printout is set, matching Type.
type OrderItem struct {
	Type     ServiceType
	Product  *ProductLine
	Porter   *PorterServiceData
	Printout *PrintoutServiceData
}

type ProductLine struct {
	ProductID    string          `json:"product"`
	ProductName  string          `json:"product_name,omitempty"`
	ProductImage []string        `json:"product_image,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

func (p ProductLine) Total() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

func (o *OrderItem) UnmarshalJSON(data []byte) error {
	var head struct {
		Type        ServiceType     `json:"type"`
		ServiceData json.RawMessage `json:"service_data"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*o = OrderItem{Type: head.Type}

	switch head.Type {
	case ServiceProduct:
		var line ProductLine
		if err := json.Unmarshal(data, &line); err != nil {
			return fmt.Errorf("decode product item: %w", err)
		}
		o.Product = &line
	case ServicePorter:
		var sd PorterServiceData
		if len(head.ServiceData) > 0 {
			if err := json.Unmarshal(head.ServiceData, &sd); err != nil {
				return fmt.Errorf("decode porter item: %w", err)
			}
		}
		o.Porter = &sd
	case ServicePrintout:
		var sd PrintoutServiceData
		if len(head.ServiceData) > 0 {
			if err := json.Unmarshal(head.ServiceData, &sd); err != nil {
				return fmt.Errorf("decode printout item: %w", err)
			}
		}
		o.Printout = &sd
	}
	// unknown types are kept with only Type set
	return nil
}

func (o OrderItem) MarshalJSON() ([]byte, error) {
	switch {
	case o.Product != nil:
		return json.Marshal(struct {
			Type ServiceType `json:"type"`
			ProductLine
		}{o.Type, *o.Product})
	case o.Porter != nil:
		return json.Marshal(OrderItemPayload{Type: o.Type, ServiceData: o.Porter})
	case o.Printout != nil:
		return json.Marshal(OrderItemPayload{Type: o.Type, ServiceData: o.Printout})
	}
	return json.Marshal(OrderItemPayload{Type: o.Type})
}
