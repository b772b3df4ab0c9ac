package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/fitsync/internal/models"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// FetchUserinfo reads the signed-in account from the userinfo v2 endpoint.
func FetchUserinfo(ctx context.Context, client *http.Client) (*models.Profile, error) {
	svc, err := googleoauth2.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get userinfo: %w", err)
	}
	return &models.Profile{
		ID:      info.Id,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}
