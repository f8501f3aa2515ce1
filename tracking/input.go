package tracking

import (
	"encoding/json"
	"fmt"

	"storefront/api/models"
)

type PageViewInput struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Path      string `json:"path" validate:"required,routepath"`
	Title     string `json:"title,omitempty" validate:"max=512"`
}

type PurchaseInput struct {
	OrderID   string            `json:"orderId" validate:"required,max=128"`
	SessionID string            `json:"sessionId" validate:"required,max=128"`
	Total     float64           `json:"total" validate:"gte=0"`
	Items     []models.LineItem `json:"items" validate:"required,min=1,dive"`
}

// EventEnvelope is one element of a batch: a page view or a purchase, tagged
// by "type". An unknown type decodes with both payloads nil so the batch can
// reject that element alone.
type EventEnvelope struct {
	Type     models.EventType
	PageView *PageViewInput
	Purchase *PurchaseInput
}

func (e *EventEnvelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Type models.EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	e.Type = head.Type
	switch head.Type {
	case models.EventTypePageView:
		e.PageView = &PageViewInput{}
		return json.Unmarshal(data, e.PageView)
	case models.EventTypePurchase:
		e.Purchase = &PurchaseInput{}
		return json.Unmarshal(data, e.Purchase)
	default:
		return nil
	}
}

func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	switch {
	case e.PageView != nil:
		return json.Marshal(struct {
			Type models.EventType `json:"type"`
			*PageViewInput
		}{models.EventTypePageView, e.PageView})
	case e.Purchase != nil:
		return json.Marshal(struct {
			Type models.EventType `json:"type"`
			*PurchaseInput
		}{models.EventTypePurchase, e.Purchase})
	default:
		return nil, fmt.Errorf("empty event envelope")
	}
}
