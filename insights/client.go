// Package insights queries the follower directory service for the users
// who opted to follow a wiki page. The data is advisory: callers must
// treat fetch failures as non-fatal.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Follower is one page follower with a linked forum account.
// DiscourseUsername may be empty when the link was never established.
type Follower struct {
	Name              string
	DiscourseUsername string
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
}

// Followers returns the users following the given page.
func (c *Client) Followers(ctx context.Context, pageID int64) ([]Follower, error) {
	url := fmt.Sprintf("%s/api/page/%d/followers?type=follow", c.baseURL, pageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch followers of page %d: %w", pageID, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch followers of page %d: unexpected status %d", pageID, resp.StatusCode)
	}

	var res struct {
		Data []struct {
			User struct {
				Name              string `json:"name"`
				DiscourseUsername string `json:"discourse_username"`
			} `json:"user"`
		} `json:"data"`
	}

	err = json.NewDecoder(resp.Body).Decode(&res)
	if err != nil {
		return nil, fmt.Errorf("failed to decode followers response: %w", err)
	}

	followers := make([]Follower, 0, len(res.Data))

	for _, item := range res.Data {
		followers = append(followers, Follower{
			Name:              item.User.Name,
			DiscourseUsername: item.User.DiscourseUsername,
		})
	}

	return followers, nil
}
