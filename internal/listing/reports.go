package listing

import (
	"context"
	"log"

	"ramallah-time/internal/models"
	"ramallah-time/internal/subscription"
)

// Stats is the admin dashboard summary.
type Stats struct {
	TotalPlaces    int     `json:"total_places"`
	PendingPlaces  int     `json:"pending_places"`
	ActivePlaces   int     `json:"active_places"`
	ExpiredPlaces  int     `json:"expired_places"`
	PremiumPlaces  int     `json:"premium_places"`
	VerifiedPlaces int     `json:"verified_places"`
	TotalRevenue   float64 `json:"total_revenue"`
	DeletedPlaces  int64   `json:"deleted_places"`
}

// Stats counts listings by effective status. Counts use the resolved status,
// never the stored hint.
func (s *Service) Stats(ctx context.Context, credential string) (*Stats, error) {
	if err := s.requireAdmin(credential); err != nil {
		return nil, err
	}
	rows, err := s.store.ListListings(ctx, Filter{})
	if err != nil {
		log.Printf("Admin: failed to load places for stats: %v", err)
		return nil, storageError()
	}

	now := s.now()
	st := &Stats{TotalPlaces: len(rows)}
	for i := range rows {
		l := &rows[i]
		switch l.Status(now) {
		case subscription.StatusPending:
			st.PendingPlaces++
		case subscription.StatusActive:
			st.ActivePlaces++
		case subscription.StatusExpired:
			st.ExpiredPlaces++
		}
		if l.IsPremium {
			st.PremiumPlaces++
		}
		if l.IsVerified {
			st.VerifiedPlaces++
		}
		st.TotalRevenue += l.PaymentTotal
	}

	deleted, err := s.store.CountDeleteLogs(ctx)
	if err != nil {
		log.Printf("Admin: failed to count delete logs: %v", err)
		return nil, storageError()
	}
	st.DeletedPlaces = deleted
	return st, nil
}

// ActivationHistory lists the activations of one listing, newest first.
func (s *Service) ActivationHistory(ctx context.Context, credential string, id uint) ([]models.Activation, error) {
	if err := s.requireAdmin(credential); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	recs, err := s.store.ListActivations(ctx, id)
	if err != nil {
		log.Printf("Admin: failed to load activations of place %d: %v", id, err)
		return nil, storageError()
	}
	if recs == nil {
		recs = []models.Activation{}
	}
	return recs, nil
}

// DeleteLogs lists recent listing deletions.
func (s *Service) DeleteLogs(ctx context.Context, credential string, limit int) ([]models.DeleteLog, error) {
	if err := s.requireAdmin(credential); err != nil {
		return nil, err
	}
	logs, err := s.store.ListDeleteLogs(ctx, s.clampLimit(limit))
	if err != nil {
		log.Printf("Admin: failed to load delete logs: %v", err)
		return nil, storageError()
	}
	if logs == nil {
		logs = []models.DeleteLog{}
	}
	return logs, nil
}

// Summary is the slice of a listing handed to the assistant.
type Summary struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Area        string `json:"area,omitempty"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"`
	PriceRange  string `json:"price_range,omitempty"`
	OpenHours   string `json:"open_hours,omitempty"`
	IsPremium   bool   `json:"is_premium"`
}

// AssistantContext returns the active, well-formed listings the assistant may
// recommend. Only public fields are included.
func (s *Service) AssistantContext(ctx context.Context, limit int) ([]Summary, error) {
	res, err := s.List(ctx, "", ListQuery{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(res.Items))
	for _, v := range res.Items {
		p := v.Public()
		out = append(out, Summary{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Area:        p.Area,
			Description: p.Description,
			Tags:        p.Tags,
			PriceRange:  p.PriceRange,
			OpenHours:   p.OpenHours,
			IsPremium:   p.IsPremium,
		})
	}
	return out, nil
}
