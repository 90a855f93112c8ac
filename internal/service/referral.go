package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"invite2win/internal/membership"
	"invite2win/internal/metrics"
	"invite2win/internal/model"
	"invite2win/internal/pkg/lock"
	"invite2win/internal/repository"
)

// referralCodeLength is the number of URL-safe characters in a referral code.
const referralCodeLength = 8

// maxCodeAttempts bounds retries on referral code collisions.
const maxCodeAttempts = 5

// ParticipantStore is the participant side of the ledger.
// Implemented by repository.ParticipantRepository.
type ParticipantStore interface {
	GetOrCreate(ctx context.Context, p *model.Participant) (*model.Participant, bool, error)
	GetByID(ctx context.Context, id int64) (*model.Participant, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Participant, error)
	UpdateProfile(ctx context.Context, id int64, username, firstName, lastName string) error
	Top(ctx context.Context, limit int) ([]*model.Participant, error)
	TotalTickets(ctx context.Context) (int64, error)
}

// ReferralStore records referral edges. Implemented by repository.ReferralRepository.
type ReferralStore interface {
	Credit(ctx context.Context, referrerID, referredID, tickets int64) (bool, error)
	CountByReferrer(ctx context.Context, referrerID int64) (int64, error)
}

// Profile is the Telegram identity presented on /start.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// RegistrationResult tells the caller what Register did.
type RegistrationResult string

const (
	// RegistrationRegistered: no referral code was given.
	RegistrationRegistered RegistrationResult = "registered"
	// RegistrationCredited: the referrer received tickets.
	RegistrationCredited RegistrationResult = "credited"
	// RegistrationAlreadyCredited: the edge existed, nothing changed.
	RegistrationAlreadyCredited RegistrationResult = "already_credited"
	RegistrationSelfReferral    RegistrationResult = "self_referral"
	RegistrationUnknownCode     RegistrationResult = "unknown_code"
	// RegistrationMembershipRequired: the user must join the channel and
	// run /start with the same code again.
	RegistrationMembershipRequired RegistrationResult = "membership_required"
	// RegistrationMembershipUnavailable: the oracle failed; retry later.
	RegistrationMembershipUnavailable RegistrationResult = "membership_unavailable"
)

// Registration is the result of Register.
type Registration struct {
	Result      RegistrationResult
	Participant *model.Participant
	Referrer    *model.Participant
	Created     bool
}

// ReferralService records referrals and credits tickets to referrers.
type ReferralService struct {
	participants       ParticipantStore
	referrals          ReferralStore
	oracle             membership.Oracle
	locks              *lock.KeyLock
	ticketsPerReferral int64
	botUsername        string
	newCode            func() string
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(
	participants ParticipantStore,
	referrals ReferralStore,
	oracle membership.Oracle,
	ticketsPerReferral int64,
	botUsername string,
) *ReferralService {
	if ticketsPerReferral <= 0 {
		ticketsPerReferral = 1
	}
	return &ReferralService{
		participants:       participants,
		referrals:          referrals,
		oracle:             oracle,
		locks:              lock.NewKeyLock(),
		ticketsPerReferral: ticketsPerReferral,
		botUsername:        botUsername,
		newCode:            GenerateReferralCode,
	}
}

// GenerateReferralCode returns 8 URL-safe characters derived from a random UUID.
func GenerateReferralCode() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])[:referralCodeLength]
}

// ReferralLink is the bot deep link that carries code as the start parameter.
func (s *ReferralService) ReferralLink(code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, code)
}

// EnsureParticipant returns the participant for profile, creating it with a
// fresh referral code on first contact. Profile changes are saved best effort.
func (s *ReferralService) EnsureParticipant(ctx context.Context, profile Profile) (*model.Participant, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		p, created, err := s.participants.GetOrCreate(ctx, &model.Participant{
			ID:           profile.ID,
			Username:     profile.Username,
			FirstName:    profile.FirstName,
			LastName:     profile.LastName,
			ReferralCode: s.newCode(),
		})
		if errors.Is(err, repository.ErrReferralCodeTaken) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to ensure participant: %w", err)
		}

		if !created && profileChanged(p, profile) {
			if err := s.participants.UpdateProfile(ctx, p.ID, profile.Username, profile.FirstName, profile.LastName); err != nil {
				log.Warn().Err(err).Int64("user_id", p.ID).Msg("Failed to update participant profile")
			} else {
				p.Username, p.FirstName, p.LastName = profile.Username, profile.FirstName, profile.LastName
			}
		}
		return p, created, nil
	}
	return nil, false, fmt.Errorf("failed to allocate referral code: %w", lastErr)
}

func profileChanged(p *model.Participant, profile Profile) bool {
	return p.Username != profile.Username || p.FirstName != profile.FirstName || p.LastName != profile.LastName
}

// Register handles a /start from profile with an optional referral code.
// The referral is honored only while the new user is a channel member;
// otherwise the result asks the caller to retry after joining.
func (s *ReferralService) Register(ctx context.Context, profile Profile, code string) (*Registration, error) {
	var reg *Registration
	err := s.locks.WithLock(ctx, profile.ID, func() error {
		var err error
		reg, err = s.register(ctx, profile, code)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRegistration(string(reg.Result))
	event := log.Info().
		Int64("user_id", profile.ID).
		Str("result", string(reg.Result)).
		Bool("created", reg.Created)
	if reg.Referrer != nil {
		event = event.Int64("referrer_id", reg.Referrer.ID)
	}
	event.Msg("Participant registered")

	return reg, nil
}

func (s *ReferralService) register(ctx context.Context, profile Profile, code string) (*Registration, error) {
	p, created, err := s.EnsureParticipant(ctx, profile)
	if err != nil {
		return nil, err
	}

	reg := &Registration{Result: RegistrationRegistered, Participant: p, Created: created}
	if code == "" {
		return reg, nil
	}

	referrer, err := s.participants.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			reg.Result = RegistrationUnknownCode
			return reg, nil
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}
	reg.Referrer = referrer

	if referrer.ID == p.ID {
		reg.Result = RegistrationSelfReferral
		return reg, nil
	}

	member, err := s.oracle.IsMember(ctx, p.ID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", p.ID).Msg("Membership lookup failed, deferring referral")
		reg.Result = RegistrationMembershipUnavailable
		return reg, nil
	}
	if !member {
		reg.Result = RegistrationMembershipRequired
		return reg, nil
	}

	credited, err := s.Credit(ctx, referrer.ID, p.ID)
	if err != nil {
		return nil, err
	}
	if credited {
		reg.Result = RegistrationCredited
	} else {
		reg.Result = RegistrationAlreadyCredited
	}
	return reg, nil
}

// Credit records the referral and gives the referrer tickets. It returns
// false without side effects when the pair was already credited or when
// the user referred themselves.
func (s *ReferralService) Credit(ctx context.Context, referrerID, referredID int64) (bool, error) {
	if referrerID == referredID {
		return false, nil
	}

	credited, err := s.referrals.Credit(ctx, referrerID, referredID, s.ticketsPerReferral)
	if err != nil {
		return false, fmt.Errorf("failed to credit referral: %w", err)
	}

	if credited {
		log.Info().
			Int64("referrer_id", referrerID).
			Int64("referred_id", referredID).
			Int64("tickets", s.ticketsPerReferral).
			Msg("Referral credited")
	}
	return credited, nil
}

// CountReferrals returns how many users referrerID has brought in.
func (s *ReferralService) CountReferrals(ctx context.Context, referrerID int64) (int64, error) {
	return s.referrals.CountByReferrer(ctx, referrerID)
}

// Stats returns the participant's tickets, referrals and current win chance.
// Returns repository.ErrParticipantNotFound for unknown users.
func (s *ReferralService) Stats(ctx context.Context, id int64) (*model.ReferralStats, error) {
	p, err := s.participants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.referrals.CountByReferrer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	total, err := s.participants.TotalTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to total tickets: %w", err)
	}

	return &model.ReferralStats{
		Tickets:        p.TicketCount,
		ReferralsCount: count,
		TotalTickets:   total,
		WinChance:      winChance(p.TicketCount, total),
	}, nil
}

// Leaderboard returns the top participants by ticket count.
func (s *ReferralService) Leaderboard(ctx context.Context, limit int) ([]*model.Participant, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.participants.Top(ctx, limit)
}
