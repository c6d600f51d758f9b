package rest

import (
	"context"
	"net/http"
	"strings"
)

// RouteKey derives the rate limit key of a request. Major parameters
// (channel, guild and webhook ids and webhook tokens) are kept since the
// server buckets per major parameter. Other ids and interaction tokens are
// masked.
func RouteKey(method, path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		root := parts[0]
		switch {
		case i == 1 && (root == "channels" || root == "guilds" || root == "webhooks"):
			continue
		case i == 2 && root == "webhooks":
			continue
		case i == 2 && root == "interactions":
			parts[i] = ":token"
		case isSnowflake(parts[i]):
			parts[i] = ":id"
		}
	}
	return method + " /" + strings.Join(parts, "/")
}

func isSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GatewayBot fetches the gateway URL and recommended shard count for the
// authenticated bot.
func (c *Client) GatewayBot(ctx context.Context) (*GatewayBot, error) {
	var gb GatewayBot
	if err := c.JSON(ctx, Request{Method: http.MethodGet, Path: "/gateway/bot"}, &gb); err != nil {
		return nil, err
	}
	return &gb, nil
}
