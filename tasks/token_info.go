package tasks

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"markd/types"
)

// tokenValidity is how long a token store is trusted after generated_at.
// The API issues tokens for roughly ten hours; eight leaves a safety
// margin.
const tokenValidity = 8 * time.Hour

// ProductGroupAccess is one entry of the token's product_group_info claim.
type ProductGroupAccess struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TokenInfo is the identity embedded in a bearer token.
type TokenInfo struct {
	User          string
	INN           string
	ExpiresAt     time.Time
	ProductGroups []ProductGroupAccess
}

// ActiveGroups returns the names of product groups with ACTIVE status.
func (t *TokenInfo) ActiveGroups() []string {
	var active []string
	for _, g := range t.ProductGroups {
		if g.Status == "ACTIVE" {
			active = append(active, g.Name)
		}
	}
	return active
}

// InspectToken decodes a bearer token's claims without verifying the
// signature. The token is only inspected for display and staleness checks;
// the remote API is the authority on validity.
func InspectToken(token string) (*TokenInfo, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	info := &TokenInfo{}
	if user, ok := claims["user"].(string); ok {
		info.User = user
	}
	if inn, ok := claims["inn"].(string); ok {
		info.INN = inn
	}
	if exp, ok := claims["exp"].(float64); ok {
		info.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if raw, ok := claims["product_group_info"].([]any); ok {
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			access := ProductGroupAccess{}
			if name, ok := m["name"].(string); ok {
				access.Name = name
			}
			if status, ok := m["status"].(string); ok {
				access.Status = status
			}
			info.ProductGroups = append(info.ProductGroups, access)
		}
	}
	return info, nil
}

// TokensStale reports whether the token store's shared generated_at
// timestamp has aged past the validity window.
func TokensStale(ts *types.TokenStore, now time.Time) bool {
	if ts == nil || len(ts.Tokens) == 0 {
		return true
	}
	return now.Sub(ts.GeneratedAt) > tokenValidity
}
