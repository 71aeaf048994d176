// Package orderitem maps cart line items to the normalized order items the
// backend accepts.
package orderitem

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/order-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultWeightCategory = "medium"
	defaultPaperSize      = "A4"
)

var ErrNoValidItems = errors.New("no valid items")

// Rejection records why a single cart item produced no payload.
type Rejection struct {
	ItemID string
	Reason string
}

// BuildError is returned when no cart item yields a valid payload.
type BuildError struct {
	CartSize int
	Rejected []Rejection
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %d of %d cart items rejected", ErrNoValidItems, len(e.Rejected), e.CartSize)
}

func (e *BuildError) Unwrap() error {
	return ErrNoValidItems
}

type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Build converts every valid item. Invalid items are logged and skipped; the
// call fails only when nothing valid remains.
func (b *Builder) Build(items []domain.CartLineItem) ([]domain.OrderItemPayload, error) {
	payloads := make([]domain.OrderItemPayload, 0, len(items))
	var rejected []Rejection

	for _, item := range items {
		payload, reason := buildItem(item)
		if reason != "" {
			b.logger.Warn("dropping cart item from order",
				zap.String("item_id", item.ID),
				zap.String("service_type", string(item.ServiceType)),
				zap.String("reason", reason))
			rejected = append(rejected, Rejection{ItemID: item.ID, Reason: reason})
			continue
		}
		payloads = append(payloads, payload)
	}

	b.logger.Debug("built order items",
		zap.Int("valid", len(payloads)),
		zap.Int("cart_items", len(items)))

	if len(payloads) == 0 {
		return nil, &BuildError{CartSize: len(items), Rejected: rejected}
	}
	return payloads, nil
}

func buildItem(item domain.CartLineItem) (domain.OrderItemPayload, string) {
	switch item.ServiceType {
	case domain.ServiceProduct:
		return buildProduct(item)
	case domain.ServicePorter:
		details, ok := item.Details.(*domain.PorterDetails)
		if !ok || details == nil {
			return domain.OrderItemPayload{}, "porter item without porter details"
		}
		return buildPorter(details)
	case domain.ServicePrintout:
		switch details := item.Details.(type) {
		case *domain.PhotoPrintDetails:
			if details == nil {
				break
			}
			return buildPhotoPrint(details)
		case *domain.DocumentPrintDetails:
			if details == nil {
				break
			}
			return buildDocumentPrint(details)
		}
		return domain.OrderItemPayload{}, "printout item without print details"
	}
	return domain.OrderItemPayload{}, fmt.Sprintf("unsupported service type %q", item.ServiceType)
}

func buildProduct(item domain.CartLineItem) (domain.OrderItemPayload, string) {
	if strings.TrimSpace(item.ID) == "" {
		return domain.OrderItemPayload{}, "product missing id"
	}
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	return domain.OrderItemPayload{
		Type:      domain.ServiceProduct,
		ProductID: item.ID,
		Quantity:  qty,
	}, ""
}

func buildPorter(d *domain.PorterDetails) (domain.OrderItemPayload, string) {
	if d.PickupAddress == nil || d.PickupAddress.ID == "" ||
		d.DeliveryAddress == nil || d.DeliveryAddress.ID == "" {
		return domain.OrderItemPayload{}, "porter missing pickup or delivery address"
	}
	weight := strings.TrimSpace(d.Weight)
	if weight == "" {
		weight = defaultWeightCategory
	}
	return domain.OrderItemPayload{
		Type: domain.ServicePorter,
		ServiceData: domain.PorterServiceData{
			PickupAddress:     *d.PickupAddress,
			DeliveryAddress:   *d.DeliveryAddress,
			Dimensions:        d.Dimensions,
			WeightCategory:    weight,
			Phone:             d.Phone,
			EstimatedDistance: parseDistance(d.Distance),
			Notes:             d.Notes,
			IsUrgent:          d.IsUrgent,
		},
	}, ""
}

func buildPhotoPrint(d *domain.PhotoPrintDetails) (domain.OrderItemPayload, string) {
	if strings.TrimSpace(d.PhotoSize) == "" || strings.TrimSpace(d.Copies) == "" {
		return domain.OrderItemPayload{}, "photo print missing photo size or copies"
	}
	pages := len(d.Photos)
	if pages == 0 {
		pages = 1
	}
	return domain.OrderItemPayload{
		Type: domain.ServicePrintout,
		ServiceData: domain.PrintoutServiceData{
			PrintType: domain.PrintTypePhoto,
			Copies:    parseCopies(d.Copies),
			Pages:     pages,
			Color:     true,
			PaperSize: d.PhotoSize,
			Notes:     d.Notes,
			PhotoURLs: fileURLs(d.Photos),
		},
	}, ""
}

func buildDocumentPrint(d *domain.DocumentPrintDetails) (domain.OrderItemPayload, string) {
	if d.NumberOfPages <= 0 || strings.TrimSpace(d.Copies) == "" {
		return domain.OrderItemPayload{}, "document print missing page count or copies"
	}
	paper := strings.TrimSpace(d.PaperSize)
	if paper == "" {
		paper = defaultPaperSize
	}
	return domain.OrderItemPayload{
		Type: domain.ServicePrintout,
		ServiceData: domain.PrintoutServiceData{
			PrintType:    domain.PrintTypeDocument,
			Copies:       parseCopies(d.Copies),
			Pages:        d.NumberOfPages,
			Color:        d.ColorPrinting,
			PaperSize:    paper,
			Notes:        d.Notes,
			DocumentURLs: fileURLs(d.Documents),
		},
	}, ""
}

func parseDistance(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseCopies(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

func fileURLs(files []domain.UploadedFile) []string {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		if f.CloudURL != "" {
			urls = append(urls, f.CloudURL)
		}
	}
	return urls
}
