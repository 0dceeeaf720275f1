package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/ledgercore/internal/account/domain"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req domain.CreateAccountRequest) (domain.Account, error) {
	if tenantID == 0 {
		return domain.Account{}, domain.ErrInvalidTenant
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Account{}, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}
	if !req.Category.Valid() {
		return domain.Account{}, domain.ErrInvalidCategory
	}
	nature := req.Nature
	if nature == "" {
		nature = req.Category.DefaultNature()
	}
	if !nature.Valid() {
		return domain.Account{}, domain.ErrInvalidNature
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.Account{}, err
	}
	if req.IsParent && !req.OpeningBalance.IsZero() {
		return domain.Account{}, domain.ErrParentOpeningBalance
	}

	level := 1
	if req.ParentID != nil {
		parent, err := s.repo.FindByID(ctx, s.db, tenantID, *req.ParentID)
		if err != nil {
			return domain.Account{}, err
		}
		if parent == nil {
			return domain.Account{}, domain.ErrInvalidParent
		}
		if !parent.IsParent {
			return domain.Account{}, domain.ErrParentNotGroup
		}
		level = parent.Level + 1
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		Code:           code,
		Name:           name,
		LocalName:      strings.TrimSpace(req.LocalName),
		Category:       req.Category,
		Nature:         nature,
		ParentID:       req.ParentID,
		Level:          level,
		IsParent:       req.IsParent,
		Currency:       currency,
		OpeningBalance: req.OpeningBalance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Account{}, domain.ErrDuplicateCode.With("account code %q already exists", code)
		}
		return domain.Account{}, err
	}

	s.log.Info("account created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("account_id", account.ID.String()),
		zap.String("code", account.Code),
	)
	return account, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id snowflake.ID, req domain.UpdateAccountRequest) (domain.Account, error) {
	if tenantID == 0 {
		return domain.Account{}, domain.ErrInvalidTenant
	}

	var updated domain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		if req.ParentID != nil && !sameParent(account.ParentID, req.ParentID) {
			return domain.ErrParentImmutable
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			account.Name = name
		}
		if req.LocalName != nil {
			account.LocalName = strings.TrimSpace(*req.LocalName)
		}
		if req.IsActive != nil {
			account.IsActive = *req.IsActive
		}

		structural := false
		if req.Code != nil {
			code := strings.TrimSpace(*req.Code)
			if code == "" {
				return domain.ErrInvalidCode
			}
			structural = structural || code != account.Code
			account.Code = code
		}
		if req.Nature != nil {
			if !req.Nature.Valid() {
				return domain.ErrInvalidNature
			}
			structural = structural || *req.Nature != account.Nature
			account.Nature = *req.Nature
		}
		if req.Currency != nil {
			currency, err := normalizeCurrency(*req.Currency)
			if err != nil {
				return err
			}
			structural = structural || currency != account.Currency
			account.Currency = currency
		}
		if req.OpeningBalance != nil {
			if account.IsParent && !req.OpeningBalance.IsZero() {
				return domain.ErrParentOpeningBalance
			}
			structural = structural || !req.OpeningBalance.Equal(account.OpeningBalance)
			account.OpeningBalance = *req.OpeningBalance
		}

		if structural {
			posted, err := s.repo.CountLineReferences(ctx, tx, tenantID, id, true)
			if err != nil {
				return err
			}
			if posted > 0 {
				return domain.ErrStructuralChange
			}
		}

		account.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateCode.With("account code %q already exists", account.Code)
			}
			return err
		}
		updated = *account
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id snowflake.ID) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		children, err := s.repo.CountChildren(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return domain.ErrHasChildren
		}

		refs, err := s.repo.CountLineReferences(ctx, tx, tenantID, id, false)
		if err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrHasPostings
		}

		if err := s.repo.Delete(ctx, tx, tenantID, id); err != nil {
			return err
		}
		s.log.Info("account deleted",
			zap.String("tenant_id", tenantID.String()),
			zap.String("account_id", id.String()),
			zap.String("code", account.Code),
		)
		return nil
	})
}

func (s *Service) GetByID(ctx context.Context, tenantID, id snowflake.ID) (domain.Account, error) {
	if tenantID == 0 {
		return domain.Account{}, domain.ErrInvalidTenant
	}
	account, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) FindByCode(ctx context.Context, tenantID snowflake.ID, code string) (domain.Account, error) {
	if tenantID == 0 {
		return domain.Account{}, domain.ErrInvalidTenant
	}
	account, err := s.repo.FindByCode(ctx, s.db, tenantID, strings.TrimSpace(code))
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound.With("account code %q not found", code)
	}
	return *account, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req domain.ListAccountRequest) ([]domain.Account, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	items, err := s.repo.List(ctx, s.db, tenantID, req)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) GetTree(ctx context.Context, tenantID snowflake.ID) ([]*domain.AccountNode, error) {
	accounts, err := s.List(ctx, tenantID, domain.ListAccountRequest{})
	if err != nil {
		return nil, err
	}

	tree, unreachable := domain.BuildTree(accounts)
	if len(unreachable) > 0 {
		codes := make([]string, 0, len(unreachable))
		for _, acc := range unreachable {
			codes = append(codes, acc.Code)
		}
		s.log.Error("account tree inconsistent",
			zap.String("tenant_id", tenantID.String()),
			zap.Strings("codes", codes),
		)
		return nil, domain.ErrTreeInconsistent.With("accounts unreachable from any root: %s", strings.Join(codes, ", "))
	}
	return tree.Roots(), nil
}

func (s *Service) ResolveLeaf(ctx context.Context, tenantID, id snowflake.ID) (domain.Account, error) {
	account, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if err := CheckPostable(account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// CheckPostable reports whether a journal line may reference the account.
func CheckPostable(account domain.Account) error {
	if account.IsParent {
		return domain.ErrAccountIsParent.With("account %s is a parent account", account.Code)
	}
	if !account.IsActive {
		return domain.ErrAccountInactive.With("account %s is inactive", account.Code)
	}
	return nil
}

func (s *Service) EnsureSubAccount(ctx context.Context, tenantID snowflake.ID, parentCode, partyRef, partyName string) (domain.Account, error) {
	if tenantID == 0 {
		return domain.Account{}, domain.ErrInvalidTenant
	}
	partySlug := slug.Make(strings.TrimSpace(partyRef))
	if partySlug == "" {
		return domain.Account{}, domain.ErrInvalidPartyRef
	}

	parent, err := s.FindByCode(ctx, tenantID, parentCode)
	if err != nil {
		return domain.Account{}, err
	}
	if !parent.IsParent {
		return domain.Account{}, domain.ErrParentNotGroup.With("account %s cannot hold party sub-accounts", parent.Code)
	}

	code := parent.Code + "-" + partySlug
	existing, err := s.repo.FindByCode(ctx, s.db, tenantID, code)
	if err != nil {
		return domain.Account{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	name := strings.TrimSpace(partyName)
	if name == "" {
		name = strings.TrimSpace(partyRef)
	}
	parentID := parent.ID
	created, err := s.Create(ctx, tenantID, domain.CreateAccountRequest{
		Code:     code,
		Name:     parent.Name + " - " + name,
		Category: parent.Category,
		Nature:   parent.Nature,
		ParentID: &parentID,
		Currency: parent.Currency,
	})
	if errors.Is(err, domain.ErrDuplicateCode) {
		// Lost a concurrent create for the same party.
		existing, err := s.repo.FindByCode(ctx, s.db, tenantID, code)
		if err != nil {
			return domain.Account{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}
	return created, err
}

func sameParent(current, requested *snowflake.ID) bool {
	if current == nil {
		return requested == nil
	}
	return requested != nil && *current == *requested
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return currency, nil
}
