package listing

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"

	"ramallah-time/internal/access"
	"ramallah-time/internal/events"
)

// Fields an owner or the admin may set to any string.
var editableText = map[string]int{
	"name":        200,
	"category":    80,
	"area":        120,
	"address":     255,
	"description": 0,
	"phone":       50,
	"whatsapp":    50,
	"website":     255,
	"instagram":   100,
	"facebook":    255,
	"map_url":     500,
	"open_hours":  255,
	"price_range": 50,
	"tags":        255,
	"owner_name":  200,
}

// Fields only the admin may change. Owners sending them are ignored.
var adminOnlyFlags = map[string]bool{
	"is_premium":  true,
	"is_verified": true,
}

// Update applies a partial update. Unknown fields are ignored. Expired owners
// are locked out until the listing is activated again; the admin never is.
func (s *Service) Update(ctx context.Context, credential string, id uint, patch map[string]interface{}) (View, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.requirePrivileged(credential, l)
	if err != nil {
		return nil, err
	}
	if c == access.Owner && l.Status(s.now()).Expired() {
		return nil, newError(ErrExpired, "subscription expired. you cannot edit right now.")
	}

	changes, err := s.buildChanges(ctx, c, l.ID, patch)
	if err != nil {
		return nil, err
	}

	// Coordinates are validated on the merged record.
	lat, lng := l.Latitude, l.Longitude
	if v, ok := changes["latitude"]; ok {
		lat, _ = v.(*float64)
	}
	if v, ok := changes["longitude"]; ok {
		lng, _ = v.(*float64)
	}
	if (lat == nil) != (lng == nil) {
		return nil, validationError("latitude and longitude must be provided together")
	}

	if len(changes) > 0 {
		if err := s.store.UpdateListing(ctx, id, changes); err != nil {
			if errors.Is(err, ErrConflict) {
				return nil, emailTaken()
			}
			if errors.Is(err, ErrNotFound) {
				return nil, notFound()
			}
			log.Printf("Listings: failed to update place %d: %v", id, err)
			return nil, storageError()
		}
	}

	l, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, l)
	s.publish(ctx, events.ListingUpdated, l, c)
	return project(l, c, l.Status(s.now()), Point{}), nil
}

func (s *Service) buildChanges(ctx context.Context, c access.Capability, id uint, patch map[string]interface{}) (map[string]interface{}, error) {
	changes := make(map[string]interface{})
	for key, raw := range patch {
		switch {
		case key == "latitude" || key == "longitude":
			v, err := nullableFloat(key, raw)
			if err != nil {
				return nil, err
			}
			changes[key] = v

		case adminOnlyFlags[key]:
			if c != access.Admin {
				continue
			}
			b, ok := raw.(bool)
			if !ok {
				return nil, validationError("%s must be a boolean", key)
			}
			changes[key] = b

		case key == "owner_password":
			secret, ok := raw.(string)
			if !ok {
				return nil, validationError("owner_password must be a string")
			}
			secret = strings.TrimSpace(secret)
			if secret == "" {
				continue
			}
			if !s.hasher.LooksHashed(secret) {
				digest, err := s.hasher.Hash(secret)
				if err != nil {
					if errors.Is(err, access.ErrSecretTooLong) {
						return nil, validationError("password must be at most %d bytes", access.MaxSecretLength)
					}
					log.Printf("Listings: failed to hash owner secret: %v", err)
					return nil, storageError()
				}
				secret = digest
			}
			changes["owner_password"] = secret

		case key == "owner_email":
			email, ok := raw.(string)
			if !ok {
				return nil, validationError("owner_email must be a string")
			}
			email = normalizeEmail(email)
			if email == "" {
				return nil, validationError("owner_email cannot be empty")
			}
			if err := s.validate.Var(email, "email,max=255"); err != nil {
				return nil, validationError("owner_email must be a valid email")
			}
			if err := s.ensureEmailFree(ctx, email, id); err != nil {
				return nil, err
			}
			changes["owner_email"] = email

		default:
			maxLen, editable := editableText[key]
			if !editable {
				continue
			}
			str, ok := raw.(string)
			if raw == nil {
				str, ok = "", true
			}
			if !ok {
				return nil, validationError("%s must be a string", key)
			}
			if key == "name" || key == "category" {
				str = strings.TrimSpace(str)
				if str == "" {
					return nil, validationError("%s is required", key)
				}
			}
			if maxLen > 0 && len([]rune(str)) > maxLen {
				return nil, validationError("%s must be at most %d characters", key, maxLen)
			}
			changes[key] = str
		}
	}
	return changes, nil
}

func nullableFloat(key string, raw interface{}) (*float64, error) {
	if raw == nil {
		return nil, nil
	}
	f, ok := raw.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, validationError("%s must be a number", key)
	}
	limit := 90.0
	if key == "longitude" {
		limit = 180
	}
	if f < -limit || f > limit {
		return nil, validationError("%s is out of range", key)
	}
	return &f, nil
}
