package collaborator

import (
	"context"
	"errors"
	"net/url"

	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
	"github.com/patetisho1/rabotim-com-sub003/pkg/httpclient"
)

const userServiceName = "user-service"

// UserClient checks identities against the user/profile service.
type UserClient struct {
	http    httpclient.Doer
	baseURL string
}

// NewUserClient creates a client for the user service at baseURL.
func NewUserClient(doer httpclient.Doer, baseURL string) *UserClient {
	return &UserClient{http: doer, baseURL: baseURL}
}

// UserExists reports whether userID is a known user.
func (c *UserClient) UserExists(ctx context.Context, userID string) (bool, error) {
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := httpclient.GetJSON(ctx, c.http, c.baseURL+"/api/v1/users/"+url.PathEscape(userID), userServiceName, &resp)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return false, classify(err, "user", userID)
}
