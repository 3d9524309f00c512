package listing

import (
	"context"
	"errors"
	"log"
	"time"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
	"ramallah-time/internal/models"
	"ramallah-time/internal/subscription"
)

// ActivateInput is an admin payment record.
type ActivateInput struct {
	Months int     `json:"months" validate:"gte=1,lte=120"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// ActivationResult summarizes an applied activation.
type ActivationResult struct {
	ListingID    uint                `json:"place_id"`
	Months       int                 `json:"months"`
	EndDate      time.Time           `json:"end_date"`
	TotalRevenue float64             `json:"total_revenue"`
	Status       subscription.Status `json:"subscription_status"`
}

// Activate records a payment and extends the subscription by Months blocks.
// A window still running is extended from its end; a lapsed one restarts now.
func (s *Service) Activate(ctx context.Context, credential string, id uint, in ActivateInput) (*ActivationResult, error) {
	if err := s.requireAdmin(credential); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("months must be between 1 and 120 and amount cannot be negative")
	}

	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	w := subscription.Extend(l.SubscriptionStart, l.SubscriptionEnd, now, in.Months, s.cfg.ActivationBlockDays)
	stacked := l.SubscriptionEnd != nil && l.SubscriptionEnd.After(now)
	total := l.PaymentTotal + in.Amount

	changes := map[string]interface{}{
		"subscription_start":  w.Start,
		"subscription_end":    w.End,
		"subscription_status": subscription.HintActive,
		"is_verified":         true,
		"payment_status":      "completed",
		"payment_total":       total,
	}
	rec := &models.Activation{
		ListingID:   id,
		Months:      in.Months,
		Days:        in.Months * s.cfg.ActivationBlockDays,
		Amount:      in.Amount,
		PreviousEnd: l.SubscriptionEnd,
		NewEnd:      w.End,
		Stacked:     stacked,
		CreatedAt:   now,
	}
	if err := s.store.Activate(ctx, id, changes, rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound()
		}
		log.Printf("Listings: failed to activate place %d: %v", id, err)
		return nil, storageError()
	}
	log.Printf("Listings: activated place %d for %d months until %s (stacked=%t)",
		id, in.Months, w.End.Format("2006-01-02"), stacked)

	l.SubscriptionStart = &w.Start
	l.SubscriptionEnd = &w.End
	l.SubscriptionStatus = subscription.HintActive
	l.IsVerified = true
	l.PaymentStatus = "completed"
	l.PaymentTotal = total
	s.reindex(ctx, l)
	s.publish(ctx, events.ListingActivated, l, access.Admin)

	return &ActivationResult{
		ListingID:    id,
		Months:       in.Months,
		EndDate:      w.End,
		TotalRevenue: total,
		Status:       l.Status(now),
	}, nil
}
