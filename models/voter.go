package models

import "time"

// Voter mirrors the voter row owned by the relational store. Only the fields
// the authentication workflow reads are kept.
type Voter struct {
	ID      uint64     `json:"id"`
	Name    string     `json:"name"`
	Aadhar  string     `json:"aadhar"`
	PhoneNo string     `json:"phone_no"`
	StateID uint64     `json:"state_id"`
	PartyID *uint64    `json:"party_id,omitempty"`
	VotedAt *time.Time `json:"voted_at,omitempty"`
	OTP     string     `json:"-"`
}

func (v *Voter) HasVoted() bool {
	return v.PartyID != nil
}

// VoterView is the voter as returned to clients after a successful OTP check.
type VoterView struct {
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	Aadhar   string  `json:"aadhar"`
	PhoneNo  string  `json:"phone_no"`
	StateID  uint64  `json:"state_id"`
	VotedAt  *string `json:"voted_at"`
	HasVoted bool    `json:"has_voted"`
}

func (v *Voter) View() VoterView {
	view := VoterView{
		ID:       v.ID,
		Name:     v.Name,
		Aadhar:   MaskAadhar(v.Aadhar),
		PhoneNo:  MaskPhoneNumber(v.PhoneNo),
		StateID:  v.StateID,
		HasVoted: v.HasVoted(),
	}
	if v.VotedAt != nil {
		s := v.VotedAt.UTC().Format(time.RFC3339)
		view.VotedAt = &s
	}
	return view
}
