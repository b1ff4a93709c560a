package steem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/utopian-io/utopian-api/src/webclient"
)

// SteemConnect exchanges OAuth codes at the token endpoint.
type SteemConnect struct {
	url          string
	clientSecret string
	http         *http.Client
}

// Tokens is the token endpoint response; the username is asserted by
// SteemConnect and trusted as the verified on-chain account.
type Tokens struct {
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func NewSteemConnect(url, clientSecret string) *SteemConnect {
	return &SteemConnect{
		url:          url,
		clientSecret: clientSecret,
		http:         webclient.NewDefault(30 * time.Second),
	}
}

// Exchange trades an OAuth code for an access/refresh token pair.
func (sc *SteemConnect) Exchange(ctx context.Context, code string) (*Tokens, error) {
	payload, err := json.Marshal(map[string]string{
		"code":          code,
		"client_secret": sc.clientSecret,
	})
	if err != nil {
		return nil, err
	}

	status, body, err := webclient.DoWithRetry(ctx, 3, 2*time.Second, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.url, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		resp, err := sc.http.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		return resp.StatusCode, b, err
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &webclient.StatusError{Status: status}
	}

	var tokens Tokens
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, err
	}
	if tokens.Username == "" || tokens.AccessToken == "" {
		return nil, io.ErrUnexpectedEOF
	}
	return &tokens, nil
}
