package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"dataflow-api/domain"
)

// accountEntity is keyed by email on both partition and row key, mirroring
// the one-row-per-account lookup pattern of the settings table.
type accountEntity struct {
	aztables.Entity
	AccountID         string `json:"AccountID"`
	PasswordHash      string `json:"PasswordHash"`
	Verified          bool   `json:"Verified"`
	VerificationToken string `json:"VerificationToken"`
	ResetToken        string `json:"ResetToken"`
	ResetExpiresAt    string `json:"ResetExpiresAt"`
	CreatedAt         string `json:"CreatedAt"`
}

func encodeAccount(a domain.Account) ([]byte, error) {
	ent := accountEntity{
		Entity:            aztables.Entity{PartitionKey: a.Email, RowKey: a.Email},
		AccountID:         a.ID,
		PasswordHash:      a.PasswordHash,
		Verified:          a.Verified,
		VerificationToken: a.VerificationToken,
		ResetToken:        a.ResetToken,
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !a.ResetExpiresAt.IsZero() {
		ent.ResetExpiresAt = a.ResetExpiresAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(ent)
}

func decodeAccount(data []byte) (domain.Account, error) {
	var ent accountEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Account{}, err
	}
	created, _ := time.Parse(time.RFC3339, ent.CreatedAt)
	var resetExpires time.Time
	if ent.ResetExpiresAt != "" {
		resetExpires, _ = time.Parse(time.RFC3339, ent.ResetExpiresAt)
	}
	return domain.Account{
		ID:                ent.AccountID,
		Email:             ent.RowKey,
		PasswordHash:      ent.PasswordHash,
		Verified:          ent.Verified,
		VerificationToken: ent.VerificationToken,
		ResetToken:        ent.ResetToken,
		ResetExpiresAt:    resetExpires,
		CreatedAt:         created,
	}, nil
}

// GetAccount looks up an account by email. A missing account yields (nil, nil).
func (s *Storage) GetAccount(ctx context.Context, email string) (*domain.Account, error) {
	resp, err := s.accountTable.GetEntity(ctx, email, email, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	acct, err := decodeAccount(resp.Value)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// FindAccountByVerificationToken resolves a pending email-verification token.
func (s *Storage) FindAccountByVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	return s.findAccount(ctx, "VerificationToken eq '"+escapeFilter(token)+"'")
}

// FindAccountByResetToken resolves a pending password-reset token.
func (s *Storage) FindAccountByResetToken(ctx context.Context, token string) (*domain.Account, error) {
	return s.findAccount(ctx, "ResetToken eq '"+escapeFilter(token)+"'")
}

func (s *Storage) findAccount(ctx context.Context, filter string) (*domain.Account, error) {
	pager := s.accountTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			acct, err := decodeAccount(raw)
			if err != nil {
				return nil, err
			}
			return &acct, nil
		}
	}
	return nil, nil
}

// InsertAccount stores a new account row. Colliding emails surface the
// table-storage conflict error unchanged.
func (s *Storage) InsertAccount(ctx context.Context, a domain.Account) error {
	data, err := encodeAccount(a)
	if err != nil {
		return err
	}
	_, err = s.accountTable.AddEntity(ctx, data, nil)
	return err
}

// UpdateAccount replaces an account row with the given state.
func (s *Storage) UpdateAccount(ctx context.Context, a domain.Account) error {
	data, err := encodeAccount(a)
	if err != nil {
		return err
	}
	etag := azcore.ETagAny
	_, err = s.accountTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// DeleteAccount removes the account row. Board data is left in place, in
// line with the observed behavior where account deletion does not cascade.
func (s *Storage) DeleteAccount(ctx context.Context, email string) error {
	_, err := s.accountTable.DeleteEntity(ctx, email, email, nil)
	return err
}
