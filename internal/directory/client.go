// Package directory is the HTTP client for the user profile directory.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/idgen"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/transport"
)

var _ transport.Profiles = (*Client)(nil)

// APIError is a non-zero errCode in a directory response.
type APIError struct {
	Path string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory %s: errCode=%d %s", e.Path, e.Code, e.Msg)
}

type result struct {
	ErrCode int             `json:"errCode"`
	ErrMsg  string          `json:"errMsg"`
	Data    json.RawMessage `json:"data"`
}

type wireUser struct {
	UserID   string `json:"userID"`
	Nickname string `json:"nickname"`
	FaceURL  string `json:"faceURL"`
	Ex       string `json:"ex"`
}

type userEx struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Type  string `json:"type"`
}

// Client calls the directory's POST JSON endpoints.
type Client struct {
	baseURL string
	token   string
	clock   *idgen.Clock
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a directory client. A nil httpClient uses a client with a
// 15 second timeout.
func NewClient(baseURL, token string, clock *idgen.Clock, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		clock:   clock,
		http:    httpClient,
		logger:  logger,
	}
}

// UserInfos returns the profiles of userIDs. Email, phone and role come from
// each profile's extension; the role defaults to customer.
func (c *Client) UserInfos(ctx context.Context, userIDs []string) ([]model.UserInfo, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var data struct {
		UsersInfo []wireUser `json:"usersInfo"`
	}
	if err := c.post(ctx, "/user/get_users_info", map[string]any{"userIDs": userIDs}, &data); err != nil {
		return nil, err
	}

	out := make([]model.UserInfo, 0, len(data.UsersInfo))
	for _, u := range data.UsersInfo {
		info := model.UserInfo{UserID: u.UserID, Nickname: u.Nickname, Role: model.RoleCustomer}
		if u.Ex != "" {
			var ex userEx
			if err := json.Unmarshal([]byte(u.Ex), &ex); err != nil {
				c.logger.Debug("bad user ex", zap.String("user_id", u.UserID), zap.Error(err))
			} else {
				info.Email = ex.Email
				info.Phone = ex.Phone
				if ex.Type == string(model.RoleSale) {
					info.Role = model.RoleSale
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// OnlineUsers returns the subset of userIDs the directory reports online.
func (c *Client) OnlineUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var data struct {
		Users []struct {
			UserID string `json:"userID"`
			Status string `json:"status"`
		} `json:"users"`
	}
	if err := c.post(ctx, "/user/get_users_online_status", map[string]any{"userIDs": userIDs}, &data); err != nil {
		return nil, err
	}
	var out []string
	for _, u := range data.Users {
		if u.Status == "" || u.Status == "online" {
			out = append(out, u.UserID)
		}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("operationID", c.clock.OperationID())
	if c.token != "" {
		req.Header.Set("token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}

	var res result
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if res.ErrCode != 0 {
		return &APIError{Path: path, Code: res.ErrCode, Msg: res.ErrMsg}
	}
	if out != nil && len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}
