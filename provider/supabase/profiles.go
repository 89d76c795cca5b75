package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/condovalle/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Profiles reads the hosted profiles table through the PostgREST API using
// the current session's token, so row-level security applies server-side.
// It implements auth.ProfileService.
type Profiles struct {
	client *Client
}

var _ auth.ProfileService = (*Profiles)(nil)

type profileRow struct {
	ID           uuid.UUID  `json:"id"`
	Role         string     `json:"role"`
	HouseNumber  int        `json:"house_number"`
	ResidentName string     `json:"resident_name"`
	Email        string     `json:"email"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// Get fetches the single profile row for a user id. A missing row is
// reported as auth.ErrProfileNotProvisioned, never invented locally.
func (p *Profiles) Get(ctx context.Context, id uuid.UUID) (*auth.Profile, error) {
	url := p.client.cfg.restURL("/profiles?select=*&id=eq." + id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build profile request")
	}

	bearer := p.client.cfg.AnonKey
	if session := p.client.CurrentSession(); session != nil {
		bearer = session.AccessToken
	}

	req.Header.Set("apikey", p.client.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	// single-object mode: PostgREST errors instead of returning an array
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	res, err := p.client.http.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "profiles service unreachable")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusNotAcceptable:
		// PostgREST reports "zero rows" through 406 in single-object mode
		return nil, auth.ErrProfileNotProvisioned.WithMetadata(map[string]any{
			"user_id": id.String(),
		})
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, decodeAPIError(res)
	}

	row := profileRow{}
	if err := json.NewDecoder(res.Body).Decode(&row); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode profile row")
	}

	role, ok := auth.ParseRole(row.Role)
	if !ok {
		return nil, goerrors.New("profile carries an unknown role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{
				"user_id": id.String(),
				"role":    row.Role,
			})
	}

	return &auth.Profile{
		ID:           row.ID,
		Role:         role,
		HouseNumber:  row.HouseNumber,
		ResidentName: row.ResidentName,
		Email:        row.Email,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}
