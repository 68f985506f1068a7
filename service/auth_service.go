package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voting-audit/blockchain/ledger"
	"voting-audit/models"
	"voting-audit/registry"
)

var (
	ErrVoterNotFound        = errors.New("voter not found")
	ErrInvalidOTP           = errors.New("invalid otp")
	ErrIntegrityCompromised = errors.New("blockchain integrity compromised")
)

const VerificationStatusVerified = "VERIFIED"

// AuditLedger is the part of *ledger.Ledger the workflow uses.
type AuditLedger interface {
	Append(event models.Event) models.Block
	IsValid() bool
}

var _ AuditLedger = (*ledger.Ledger)(nil)

type AuthConfig struct {
	OTPLength int
}

// AuthService runs the voter login workflow and records each milestone in
// the audit ledger.
type AuthService struct {
	voters    registry.VoterDirectory
	ledger    AuditLedger
	sender    OTPSender
	metrics   *MetricsCollector
	otpLength int
	logger    *zap.Logger
	now       func() time.Time
}

type BlockchainInfo struct {
	BlockHash          common.Hash `json:"blockHash"`
	VerificationStatus string      `json:"verificationStatus"`
}

type VerifyResult struct {
	Voter          models.VoterView `json:"voter"`
	BlockchainInfo BlockchainInfo   `json:"blockchainInfo"`
}

func NewAuthService(voters registry.VoterDirectory, l AuditLedger, sender OTPSender, metrics *MetricsCollector, cfg AuthConfig, logger *zap.Logger) *AuthService {
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		voters:    voters,
		ledger:    l,
		sender:    sender,
		metrics:   metrics,
		otpLength: cfg.OTPLength,
		logger:    logger,
		now:       time.Now,
	}
}

// Login issues an OTP to a registered voter and records the attempt. The
// request fails with ErrIntegrityCompromised if the chain no longer validates.
func (s *AuthService) Login(ctx context.Context, aadhar, phone string) error {
	voter, err := s.voters.FindByAadharAndPhone(ctx, aadhar, phone)
	if err != nil {
		return lookupError(err, ErrVoterNotFound)
	}

	otp, err := generateOTP(s.otpLength)
	if err != nil {
		return err
	}
	if err := s.voters.SetOTP(ctx, phone, otp); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	if err := s.sender.SendOTP(ctx, phone, "Voter", otp); err != nil {
		return fmt.Errorf("failed to send otp: %w", err)
	}

	s.record(models.NewLoginEvent(voter.ID, voter.Aadhar, s.now()))

	return s.checkIntegrity()
}

// VerifyOTP completes a login and returns the hash of the block that
// recorded it as verification metadata.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, otp string) (*VerifyResult, error) {
	voter, err := s.voters.FindByPhoneAndOTP(ctx, phone, otp)
	if err != nil {
		return nil, lookupError(err, ErrInvalidOTP)
	}
	if err := s.voters.ClearOTP(ctx, phone); err != nil {
		return nil, fmt.Errorf("failed to clear otp: %w", err)
	}

	block := s.record(models.NewLoginSuccessEvent(voter.ID, voter.Aadhar, s.now()))

	if err := s.checkIntegrity(); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Voter: voter.View(),
		BlockchainInfo: BlockchainInfo{
			BlockHash:          block.Hash,
			VerificationStatus: VerificationStatusVerified,
		},
	}, nil
}

func (s *AuthService) record(event models.Event) models.Block {
	start := time.Now()
	block := s.ledger.Append(event)
	s.metrics.RecordAppend(time.Since(start))

	s.logger.Info("auth event recorded",
		zap.String("action", string(event.Kind())),
		zap.Uint64("voter_id", event.VoterID()),
		zap.Uint64("block", block.Index))
	return block
}

func (s *AuthService) checkIntegrity() error {
	start := time.Now()
	valid := s.ledger.IsValid()
	s.metrics.RecordValidation(time.Since(start), valid)

	if !valid {
		s.logger.Error("audit ledger failed validation")
		return fmt.Errorf("%w: %w", ErrIntegrityCompromised, ledger.ErrIntegrityViolation)
	}
	return nil
}

func lookupError(err, notFound error) error {
	if errors.Is(err, registry.ErrVoterNotFound) {
		return notFound
	}
	return fmt.Errorf("voter lookup failed: %w", err)
}
