package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"voting-audit/models"
)

var ErrVoterNotFound = errors.New("voter not found")

// VoterDirectory is the slice of the relational voter store that the
// authentication workflow depends on.
type VoterDirectory interface {
	FindByAadharAndPhone(ctx context.Context, aadhar, phone string) (*models.Voter, error)
	FindByPhoneAndOTP(ctx context.Context, phone, otp string) (*models.Voter, error)
	SetOTP(ctx context.Context, phone, otp string) error
	ClearOTP(ctx context.Context, phone string) error
}

// MockVoterRegistry is an in-memory VoterDirectory keyed by phone number.
type MockVoterRegistry struct {
	voters map[string]*models.Voter
	mu     sync.RWMutex
	config RegistryConfig
}

type RegistryConfig struct {
	VotersFilePath string `json:"voters_file_path"`
}

var _ VoterDirectory = (*MockVoterRegistry)(nil)

func NewMockVoterRegistry(config RegistryConfig) *MockVoterRegistry {
	return &MockVoterRegistry{
		voters: make(map[string]*models.Voter),
		config: config,
	}
}

// LoadVotersFromFile seeds the registry from the configured JSON file.
// A missing file leaves the registry empty.
func (m *MockVoterRegistry) LoadVotersFromFile() error {
	if m.config.VotersFilePath == "" {
		return nil
	}

	data, err := os.ReadFile(m.config.VotersFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read voters file: %w", err)
	}

	var votersData struct {
		Voters []*models.Voter `json:"voters"`
	}
	if err := json.Unmarshal(data, &votersData); err != nil {
		return fmt.Errorf("failed to unmarshal voter data: %w", err)
	}

	for _, voter := range votersData.Voters {
		if err := m.AddVoter(voter); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockVoterRegistry) AddVoter(voter *models.Voter) error {
	if err := validateVoterData(voter); err != nil {
		return fmt.Errorf("invalid voter data for id %d: %w", voter.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.voters[voter.PhoneNo]; exists {
		return fmt.Errorf("voter with phone %s already exists", models.MaskPhoneNumber(voter.PhoneNo))
	}
	for _, v := range m.voters {
		if v.Aadhar == voter.Aadhar {
			return fmt.Errorf("voter with aadhar %s already exists", models.MaskAadhar(voter.Aadhar))
		}
	}

	stored := *voter
	m.voters[voter.PhoneNo] = &stored
	return nil
}

func validateVoterData(voter *models.Voter) error {
	if voter.ID == 0 {
		return errors.New("missing id")
	}
	if strings.TrimSpace(voter.Aadhar) == "" {
		return errors.New("missing aadhar")
	}
	if strings.TrimSpace(voter.PhoneNo) == "" {
		return errors.New("missing phone number")
	}
	return nil
}

func (m *MockVoterRegistry) FindByAadharAndPhone(ctx context.Context, aadhar, phone string) (*models.Voter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	voter, ok := m.voters[phone]
	if !ok || voter.Aadhar != aadhar {
		return nil, ErrVoterNotFound
	}
	out := *voter
	return &out, nil
}

func (m *MockVoterRegistry) FindByPhoneAndOTP(ctx context.Context, phone, otp string) (*models.Voter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	voter, ok := m.voters[phone]
	if !ok || otp == "" || voter.OTP != otp {
		return nil, ErrVoterNotFound
	}
	out := *voter
	return &out, nil
}

func (m *MockVoterRegistry) SetOTP(ctx context.Context, phone, otp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	voter, ok := m.voters[phone]
	if !ok {
		return ErrVoterNotFound
	}
	voter.OTP = otp
	return nil
}

func (m *MockVoterRegistry) ClearOTP(ctx context.Context, phone string) error {
	return m.SetOTP(ctx, phone, "")
}

func (m *MockVoterRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.voters)
}
