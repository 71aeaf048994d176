package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type ServiceType string

const (
	ServiceProduct  ServiceType = "product"
	ServicePorter   ServiceType = "porter"
	ServicePrintout ServiceType = "printout"
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceProduct, ServicePorter, ServicePrintout:
		return true
	}
	return false
}

// Scope selects which of the two carts an operation targets.
type Scope string

const (
	ScopeGuest Scope = "guest"
	ScopeUser  Scope = "user"
)

type Address struct {
	ID           string `json:"_id"`
	Label        string `json:"label,omitempty"`
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	MobileNumber string `json:"mobile_number,omitempty"`
}

type Dimensions struct {
	Length string `json:"length"`
	Width  string `json:"width"`
	Height string `json:"height"`
}

// UploadedFile is a reference returned by the upload service. Only CloudURL is
// sent to the backend.
type UploadedFile struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	CloudURL string `json:"cloudUrl"`
}

// ServiceDetails is the kind-specific payload of a service line item.
// Implemented by *PorterDetails, *DocumentPrintDetails and *PhotoPrintDetails.
type ServiceDetails interface {
	serviceType() ServiceType
	printType() string
}

type PorterDetails struct {
	PickupAddress   *Address    `json:"pickupAddress,omitempty"`
	DeliveryAddress *Address    `json:"deliveryAddress,omitempty"`
	Distance        string      `json:"distance,omitempty"`
	Dimensions      *Dimensions `json:"dimensions,omitempty"`
	Weight          string      `json:"weight,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	IsUrgent        bool        `json:"isUrgent,omitempty"`
}

func (*PorterDetails) serviceType() ServiceType { return ServicePorter }
func (*PorterDetails) printType() string        { return "" }

const (
	PrintTypeDocument = "document"
	PrintTypePhoto    = "photo"
)

type DocumentPrintDetails struct {
	NumberOfPages int            `json:"numberOfPages"`
	Copies        string         `json:"copies"`
	ColorPrinting bool           `json:"colorPrinting"`
	PaperSize     string         `json:"paperSize,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Documents     []UploadedFile `json:"documents,omitempty"`
}

func (*DocumentPrintDetails) serviceType() ServiceType { return ServicePrintout }
func (*DocumentPrintDetails) printType() string        { return PrintTypeDocument }

type PhotoPrintDetails struct {
	PhotoSize string         `json:"photoSize"`
	Copies    string         `json:"copies"`
	Notes     string         `json:"notes,omitempty"`
	Photos    []UploadedFile `json:"photos,omitempty"`
}

func (*PhotoPrintDetails) serviceType() ServiceType { return ServicePrintout }
func (*PhotoPrintDetails) printType() string        { return PrintTypePhoto }

// CartLineItem is a single entry in a cart scope.
type CartLineItem struct {
	ID           string
	Name         string
	ServiceType  ServiceType
	Quantity     int
	SellingPrice decimal.Decimal
	Details      ServiceDetails
}

// DetailsMatch reports whether the details variant agrees with ServiceType.
func (i CartLineItem) DetailsMatch() bool {
	if i.ServiceType == ServiceProduct {
		return i.Details == nil
	}
	return i.Details == nil || i.Details.serviceType() == i.ServiceType
}

// LineQuantity is the multiplier used for subtotals. Services count once
// unless a quantity was explicitly tracked.
func (i CartLineItem) LineQuantity() int {
	if i.Quantity > 0 {
		return i.Quantity
	}
	if i.ServiceType == ServiceProduct {
		return 0
	}
	return 1
}

func (i CartLineItem) LineTotal() decimal.Decimal {
	return i.SellingPrice.Mul(decimal.NewFromInt(int64(i.LineQuantity())))
}

type lineItemJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	ServiceType    ServiceType     `json:"serviceType"`
	Quantity       int             `json:"quantity,omitempty"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	PrintType      string          `json:"printType,omitempty"`
	ServiceDetails json.RawMessage `json:"serviceDetails,omitempty"`
}

func (i CartLineItem) MarshalJSON() ([]byte, error) {
	out := lineItemJSON{
		ID:           i.ID,
		Name:         i.Name,
		ServiceType:  i.ServiceType,
		Quantity:     i.Quantity,
		SellingPrice: i.SellingPrice,
	}
	if i.Details != nil {
		raw, err := json.Marshal(i.Details)
		if err != nil {
			return nil, err
		}
		out.PrintType = i.Details.printType()
		out.ServiceDetails = raw
	}
	return json.Marshal(out)
}

func (i *CartLineItem) UnmarshalJSON(data []byte) error {
	var in lineItemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*i = CartLineItem{
		ID:           in.ID,
		Name:         in.Name,
		ServiceType:  in.ServiceType,
		Quantity:     in.Quantity,
		SellingPrice: in.SellingPrice,
	}
	if len(in.ServiceDetails) == 0 || string(in.ServiceDetails) == "null" {
		return nil
	}

	var details ServiceDetails
	switch {
	case in.ServiceType == ServicePorter:
		details = &PorterDetails{}
	case in.ServiceType == ServicePrintout && in.PrintType == PrintTypePhoto:
		details = &PhotoPrintDetails{}
	case in.ServiceType == ServicePrintout:
		details = &DocumentPrintDetails{}
	default:
		return fmt.Errorf("service details not supported for %q items", in.ServiceType)
	}
	if err := json.Unmarshal(in.ServiceDetails, details); err != nil {
		return fmt.Errorf("decode %s details: %w", in.ServiceType, err)
	}
	i.Details = details
	return nil
}
