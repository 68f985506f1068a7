package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"voting-audit/models"
)

// OTPSender delivers a one-time password to a voter's phone.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, name, otp string) error
}

// LogSender stands in for the SMS gateway and only logs the delivery.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, phone, name, otp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("otp dispatched",
		zap.String("phone", models.MaskPhoneNumber(phone)),
		zap.String("name", name))
	return nil
}

// generateOTP returns a random decimal code of the given length with no leading zero.
func generateOTP(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid otp length %d", length)
	}
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Sub(new(big.Int).Mul(low, big.NewInt(10)), low)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return n.Add(n, low).String(), nil
}
