// Package social implements the friendship graph operations: requests,
// acceptance, close-friend marking and friend listings.
package social

import (
	"context"
	"fmt"

	domainFriendship "glimpse/internal/domain/friendship"
	domainUser "glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/shared/biztime"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
)

// FriendRequestNotice is the realtime push payload for friend request
// events.
type FriendRequestNotice struct {
	RequestID   uint   `json:"requestId"`
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Timestamp   int64  `json:"timestamp"`
}

// Notifier pushes friend request events to connected users. Delivery is
// best effort; an offline recipient simply misses the push.
type Notifier interface {
	PushFriendRequestReceived(userID uint, notice FriendRequestNotice)
	PushFriendRequestAccepted(userID uint, notice FriendRequestNotice)
}

// FriendView is a friend entry enriched with live presence.
type FriendView struct {
	FriendID    uint   `json:"friendId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	CloseFriend bool   `json:"closeFriend"`
	Online      bool   `json:"online"`
}

// Service orchestrates friendship operations.
type Service struct {
	friendships domainFriendship.Repository
	users       domainUser.Repository
	presence    cache.PresenceStore
	notifier    Notifier
	logger      logger.Interface
}

func NewService(
	friendships domainFriendship.Repository,
	users domainUser.Repository,
	presence cache.PresenceStore,
	notifier Notifier,
	log logger.Interface,
) *Service {
	return &Service{
		friendships: friendships,
		users:       users,
		presence:    presence,
		notifier:    notifier,
		logger:      log.Named("social.service"),
	}
}

// Request creates a pending friend request addressed by username and pushes
// a realtime notice to the recipient if they are connected.
func (s *Service) Request(ctx context.Context, userID uint, friendUsername string) (*domainFriendship.Friendship, error) {
	friend, err := s.users.GetByUsername(ctx, friendUsername)
	if err != nil {
		return nil, err
	}

	if _, err := s.friendships.Get(ctx, userID, friend.ID); err == nil {
		return nil, apperrors.NewConflictError("friendship already exists")
	} else if !apperrors.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	// A pending request from the other side also blocks a duplicate.
	if _, err := s.friendships.Get(ctx, friend.ID, userID); err == nil {
		return nil, apperrors.NewConflictError("friendship already exists")
	} else if !apperrors.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}

	request, err := domainFriendship.NewRequest(userID, friend.ID)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if err := s.friendships.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}

	s.logger.Infow("friend request created",
		"request_id", request.ID,
		"user_id", userID,
		"friend_id", friend.ID,
	)
	s.notify(ctx, request.ID, userID, func(n Notifier, r FriendRequestNotice) {
		n.PushFriendRequestReceived(friend.ID, r)
	})
	return request, nil
}

// Accept accepts a pending request addressed to userID. Acceptance stores
// the reciprocal edge so both directions are queryable as accepted.
func (s *Service) Accept(ctx context.Context, userID, requestID uint) (*domainFriendship.Friendship, error) {
	request, err := s.friendships.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.FriendID != userID {
		return nil, apperrors.NewForbiddenError("request is not addressed to you")
	}
	if err := request.Accept(); err != nil {
		return nil, apperrors.NewConflictError(err.Error())
	}
	if err := s.friendships.Update(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to accept request: %w", err)
	}

	if err := s.ensureReciprocal(ctx, userID, request.UserID); err != nil {
		return nil, err
	}

	s.logger.Infow("friend request accepted",
		"request_id", request.ID,
		"user_id", request.UserID,
		"friend_id", userID,
	)
	s.notify(ctx, request.ID, userID, func(n Notifier, r FriendRequestNotice) {
		n.PushFriendRequestAccepted(request.UserID, r)
	})
	return request, nil
}

func (s *Service) ensureReciprocal(ctx context.Context, userID, friendID uint) error {
	_, err := s.friendships.Get(ctx, userID, friendID)
	if err == nil {
		return nil
	}
	if !apperrors.IsNotFoundError(err) {
		return fmt.Errorf("failed to check reciprocal edge: %w", err)
	}

	reciprocal, err := domainFriendship.NewRequest(userID, friendID)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	reciprocal.Status = domainFriendship.StatusAccepted
	if err := s.friendships.Create(ctx, reciprocal); err != nil {
		return fmt.Errorf("failed to create reciprocal edge: %w", err)
	}
	return nil
}

// List returns userID's accepted friends with their live online state.
func (s *Service) List(ctx context.Context, userID uint) ([]FriendView, error) {
	friends, err := s.friendships.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}

	views := make([]FriendView, 0, len(friends))
	for _, f := range friends {
		online, err := s.presence.IsOnline(ctx, f.FriendID)
		if err != nil {
			s.logger.Warnw("presence lookup failed", "friend_id", f.FriendID, "error", err)
		}
		views = append(views, FriendView{
			FriendID:    f.FriendID,
			Username:    f.Username,
			DisplayName: f.DisplayName,
			CloseFriend: f.CloseFriend,
			Online:      online,
		})
	}
	return views, nil
}

// ListPending returns the requests waiting on userID's answer.
func (s *Service) ListPending(ctx context.Context, userID uint) ([]*domainFriendship.Friendship, error) {
	return s.friendships.ListPending(ctx, userID)
}

// SetCloseFriend flags userID's own edge toward friendID. The flag controls
// what the FRIEND sees of userID under close_friends_only tab privacy.
func (s *Service) SetCloseFriend(ctx context.Context, userID, friendID uint, close bool) (*domainFriendship.Friendship, error) {
	edge, err := s.friendships.Get(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	if err := edge.SetCloseFriend(close); err != nil {
		return nil, apperrors.NewConflictError(err.Error())
	}
	if err := s.friendships.Update(ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to update close friend flag: %w", err)
	}
	return edge, nil
}

// notify builds the push payload from the acting user's profile and hands
// it to the notifier. Failures only log.
func (s *Service) notify(ctx context.Context, requestID, actorID uint, push func(Notifier, FriendRequestNotice)) {
	if s.notifier == nil {
		return
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		s.logger.Warnw("failed to load actor for push", "user_id", actorID, "error", err)
		return
	}
	push(s.notifier, FriendRequestNotice{
		RequestID:   requestID,
		UserID:      actor.ID,
		Username:    actor.Username,
		DisplayName: actor.DisplayName,
		Timestamp:   biztime.NowUTC().Unix(),
	})
}
