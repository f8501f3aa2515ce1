package tracking

import (
	"context"

	"github.com/rs/zerolog/log"

	"storefront/api/models"
)

type ProductLookup interface {
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
}

// BuildPurchase derives a purchase from an order confirmation. Each line takes
// its name from the catalog, falling back to the name embedded in the order
// when the product is unknown or the lookup fails. Prices are the order's
// snapshot, with the catalog price used only when the order carries none.
func BuildPurchase(ctx context.Context, order models.Order, lookup ProductLookup) PurchaseInput {
	products := map[string]models.Product{}
	if lookup != nil && len(order.Items) > 0 {
		ids := make([]string, 0, len(order.Items))
		for _, it := range order.Items {
			ids = append(ids, it.ProductID)
		}
		found, err := lookup.GetProducts(ctx, ids)
		if err != nil {
			log.Warn().Err(err).Str("order_id", order.ID).Msg("Product lookup failed, using order snapshot names")
		} else {
			products = found
		}
	}

	items := make([]models.LineItem, 0, len(order.Items))
	var sum float64
	for _, it := range order.Items {
		line := models.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
		}
		if p, ok := products[it.ProductID]; ok {
			if p.Name != "" {
				line.Name = p.Name
			}
			if line.Price == 0 {
				line.Price = p.Price
			}
		}
		sum += line.Price * float64(line.Quantity)
		items = append(items, line)
	}

	total := order.Total
	if total == 0 {
		total = sum
	}

	return PurchaseInput{
		OrderID:   order.ID,
		SessionID: order.SessionID,
		Total:     total,
		Items:     items,
	}
}

func (w *Writer) RecordOrder(ctx context.Context, order models.Order, lookup ProductLookup) (Result, error) {
	return w.RecordPurchase(ctx, BuildPurchase(ctx, order, lookup))
}
