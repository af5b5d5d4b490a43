package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iconichq/automod/internal/gateway"
)

const requestTimeout = 10 * time.Second

// HTTPGateway implements gateway.Client against the platform's private
// HTTP API.
type HTTPGateway struct {
	baseURL  string
	userID   string
	token    string
	deviceID string
	client   *http.Client
}

func NewHTTPGateway(baseURL, userID, token, deviceID string) gateway.Client {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return &HTTPGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		userID:   userID,
		token:    token,
		deviceID: deviceID,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

type apiEnvelope struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message"`
}

type apiUser struct {
	UserID             json.Number `json:"user_id"`
	FirstName          string      `json:"first_name"`
	IsSpeaker          bool        `json:"is_speaker"`
	IsInvitedAsSpeaker bool        `json:"is_invited_as_speaker"`
	IsModerator        bool        `json:"is_moderator"`
}

type apiClub struct {
	ClubID json.Number `json:"club_id"`
}

type joinResponse struct {
	apiEnvelope
	Channel              string      `json:"channel"`
	IsPrivate            bool        `json:"is_private"`
	IsSocialMode         bool        `json:"is_social_mode"`
	IsLounge             bool        `json:"is_lounge_mode"`
	AutoSpeakerApproval  bool        `json:"auto_speaker_approval"`
	CreatorUserProfileID json.Number `json:"creator_user_profile_id"`
	Club                 *apiClub    `json:"club"`
	IsChatEnabled        bool        `json:"is_chat_enabled"`
	TimeCreated          string      `json:"time_created"`
	Token                string      `json:"token"`
	Users                []apiUser   `json:"users"`
}

type channelResponse struct {
	apiEnvelope
	IsChatEnabled bool      `json:"is_chat_enabled"`
	Users         []apiUser `json:"users"`
}

type notificationsResponse struct {
	apiEnvelope
	Notifications []struct {
		Type        int    `json:"type"`
		TimeCreated string `json:"time_created"`
		Channel     string `json:"channel"`
		Message     string `json:"message"`
		UserProfile struct {
			UserID json.Number `json:"user_id"`
			Name   string      `json:"name"`
		} `json:"user_profile"`
	} `json:"notifications"`
}

func (g *HTTPGateway) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return g.do(req, out)
}

func (g *HTTPGateway) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	return g.do(req, out)
}

func (g *HTTPGateway) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+g.token)
	req.Header.Set("CH-UserID", g.userID)
	req.Header.Set("CH-DeviceId", g.deviceID)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// envelopeErr maps the platform's textual failures onto the sentinel
// errors the core branches on.
func envelopeErr(env apiEnvelope, op string) error {
	if env.Success {
		return nil
	}
	msg := strings.ToLower(env.ErrorMessage)
	switch {
	case strings.Contains(msg, "no longer available"), strings.Contains(msg, "not available anymore"):
		return gateway.ErrRoomUnavailable
	case strings.Contains(msg, "too fast"), strings.Contains(msg, "rate limit"):
		return gateway.ErrRateLimited
	}
	return fmt.Errorf("%s failed: %s", op, env.ErrorMessage)
}

func toRoomUsers(users []apiUser) []gateway.RoomUser {
	out := make([]gateway.RoomUser, 0, len(users))
	for _, u := range users {
		out = append(out, gateway.RoomUser{
			UserID:             u.UserID.String(),
			FirstName:          u.FirstName,
			IsSpeaker:          u.IsSpeaker,
			IsInvitedAsSpeaker: u.IsInvitedAsSpeaker,
			IsModerator:        u.IsModerator,
		})
	}
	return out
}

func parseAPITime(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05.999999Z07:00", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (g *HTTPGateway) Join(ctx context.Context, roomID string) (gateway.JoinInfo, error) {
	var resp joinResponse
	if err := g.post(ctx, "/join_channel", map[string]any{"channel": roomID}, &resp); err != nil {
		return gateway.JoinInfo{}, err
	}
	if err := envelopeErr(resp.apiEnvelope, "join"); err != nil {
		return gateway.JoinInfo{}, err
	}
	info := gateway.JoinInfo{
		Success:             true,
		RoomID:              resp.Channel,
		IsPrivate:           resp.IsPrivate,
		IsSocialMode:        resp.IsSocialMode,
		IsLounge:            resp.IsLounge,
		AutoSpeakerApproval: resp.AutoSpeakerApproval,
		HostID:              resp.CreatorUserProfileID.String(),
		ChatEnabled:         resp.IsChatEnabled,
		TimeCreated:         parseAPITime(resp.TimeCreated),
		Token:               resp.Token,
		Users:               toRoomUsers(resp.Users),
	}
	if resp.Club != nil {
		info.ClubID = resp.Club.ClubID.String()
	}
	for _, u := range info.Users {
		if u.UserID == info.HostID {
			info.HostName = u.FirstName
			break
		}
	}
	return info, nil
}

func (g *HTTPGateway) GetSnapshot(ctx context.Context, roomID string) (gateway.Snapshot, error) {
	var resp channelResponse
	if err := g.post(ctx, "/get_channel", map[string]any{"channel": roomID}, &resp); err != nil {
		return gateway.Snapshot{}, err
	}
	if err := envelopeErr(resp.apiEnvelope, "get_channel"); err != nil {
		return gateway.Snapshot{}, err
	}
	return gateway.Snapshot{
		Success:     true,
		ChatEnabled: resp.IsChatEnabled,
		Users:       toRoomUsers(resp.Users),
	}, nil
}

func (g *HTTPGateway) Leave(ctx context.Context, roomID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/leave_channel", map[string]any{"channel": roomID}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "leave")
}

func (g *HTTPGateway) InviteToSpeak(ctx context.Context, roomID, userID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/invite_speaker", map[string]any{"channel": roomID, "user_id": userID}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "invite_speaker")
}

func (g *HTTPGateway) PromoteToModerator(ctx context.Context, roomID, userID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/make_moderator", map[string]any{"channel": roomID, "user_id": userID}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "make_moderator")
}

func (g *HTTPGateway) RemoveUser(ctx context.Context, roomID, userID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/uncle_bounce", map[string]any{"channel": roomID, "user_id": userID}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "remove_user")
}

func (g *HTTPGateway) SendChat(ctx context.Context, roomID, text string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/send_channel_message", map[string]any{"channel": roomID, "message": text}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "send_channel_message")
}

func (g *HTTPGateway) KeepAlive(ctx context.Context, roomID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/active_ping", map[string]any{"channel": roomID}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "active_ping")
}

func (g *HTTPGateway) RaiseHand(ctx context.Context, roomID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/audience_reply", map[string]any{"channel": roomID, "raise_hands": true}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "audience_reply")
}

func (g *HTTPGateway) AcceptSpeakerInvite(ctx context.Context, roomID string) error {
	var resp apiEnvelope
	if err := g.post(ctx, "/accept_speaker_invite", map[string]any{"channel": roomID, "user_id": g.userID}, &resp); err != nil {
		return err
	}
	return envelopeErr(resp, "accept_speaker_invite")
}

func (g *HTTPGateway) GetNotifications(ctx context.Context) ([]gateway.Notification, error) {
	var resp notificationsResponse
	if err := g.get(ctx, "/get_notifications", &resp); err != nil {
		return nil, err
	}
	if err := envelopeErr(resp.apiEnvelope, "get_notifications"); err != nil {
		return nil, err
	}
	out := make([]gateway.Notification, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		out = append(out, gateway.Notification{
			Type:        n.Type,
			TimeCreated: parseAPITime(n.TimeCreated),
			UserID:      n.UserProfile.UserID.String(),
			UserName:    n.UserProfile.Name,
			RoomID:      n.Channel,
			Message:     n.Message,
		})
	}
	return out, nil
}
