package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/marketplace-realtime/internal/model"
)

// defaultPageSize matches the web client's page size.
const defaultPageSize = 50

// maxHistoryPages bounds GetAllMessages against a backend that never
// reports the last page.
const maxHistoryPages = 1000

// GetConversations fetches the user's conversation summaries.
func (c *Client) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	var resp ConversationsResponse
	if err := c.get(ctx, "/conversations", nil, &resp); err != nil {
		return nil, fmt.Errorf("get conversations: %w", err)
	}
	return resp.Conversations, nil
}

// GetMessages fetches one page of a conversation's messages.
func (c *Client) GetMessages(ctx context.Context, conversationID string, opts GetMessagesOptions) (*MessagesResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = defaultPageSize
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(opts.Page))
	query.Set("limit", strconv.Itoa(opts.Limit))

	var resp MessagesResponse
	if err := c.get(ctx, messagesPath(conversationID), query, &resp); err != nil {
		return nil, fmt.Errorf("get messages %s: %w", conversationID, err)
	}
	if resp.Page == 0 {
		resp.Page = opts.Page
	}

	// Bare-array responses carry no paging flag; a full page implies more.
	if resp.bare && len(resp.Messages) == opts.Limit {
		resp.HasMore = true
	}

	return &resp, nil
}

// GetAllMessages fetches a conversation's full history by paginating.
func (c *Client) GetAllMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var all []model.Message
	opts := GetMessagesOptions{Page: 1, Limit: defaultPageSize}

	for range maxHistoryPages {
		resp, err := c.GetMessages(ctx, conversationID, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Messages...)

		if !resp.HasMore || len(resp.Messages) == 0 {
			return all, nil
		}
		opts.Page++
	}

	c.logger.Warn("history pagination stopped at page limit",
		"conversation_id", conversationID,
		"pages", maxHistoryPages,
	)
	return all, nil
}

// SendMessage posts a message over REST. Used when the realtime session is
// unavailable.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (*model.Message, error) {
	req := sendMessageRequest{
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	var msg model.Message
	if err := c.post(ctx, messagesPath(conversationID), req, &msg); err != nil {
		return nil, fmt.Errorf("send message %s: %w", conversationID, err)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = model.ID(conversationID)
	}
	if msg.Text == "" {
		msg.Text = text
	}

	return &msg, nil
}

func messagesPath(conversationID string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/messages"
}
