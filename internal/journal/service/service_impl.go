package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	accountservice "github.com/smallbiznis/ledgercore/internal/account/service"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/journal/domain"
	"github.com/smallbiznis/ledgercore/internal/observability/metrics"
	"github.com/smallbiznis/ledgercore/pkg/db"
	"github.com/smallbiznis/ledgercore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	accountRepo accountdomain.Repository
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("journal.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req domain.CreateEntryRequest) (domain.JournalEntry, error) {
	if tenantID == 0 {
		return domain.JournalEntry{}, domain.ErrInvalidTenant
	}
	if !req.Type.UserCreatable() {
		return domain.JournalEntry{}, domain.ErrInvalidEntryType
	}

	var created domain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.insertDraft(ctx, tx, tenantID, req)
		if err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}

	s.log.Info("journal entry drafted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", created.ID.String()),
		zap.String("type", string(created.Type)),
	)
	return created, nil
}

func (s *Service) UpdateDraft(ctx context.Context, tenantID, id snowflake.ID, req domain.UpdateEntryRequest) (domain.JournalEntry, error) {
	if tenantID == 0 {
		return domain.JournalEntry{}, domain.ErrInvalidTenant
	}

	var updated domain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotFound
		}
		if entry.Status != domain.StatusDraft {
			return domain.ErrNotDraft
		}

		if req.EntryDate != nil {
			if req.EntryDate.IsZero() {
				return domain.ErrInvalidEntryDate
			}
			entry.EntryDate = domain.DateOnly(*req.EntryDate)
			entry.Period = domain.PeriodOf(entry.EntryDate)
		}
		if req.Type != nil {
			if !req.Type.UserCreatable() {
				return domain.ErrInvalidEntryType
			}
			entry.Type = *req.Type
		}
		if req.Description != nil {
			entry.Description = strings.TrimSpace(*req.Description)
		}

		lines, err := s.repo.ListLines(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if req.Lines != nil {
			lines, err = s.buildLines(ctx, tx, tenantID, id, req.Lines)
			if err != nil {
				return err
			}
			if err := s.repo.DeleteLines(ctx, tx, tenantID, id); err != nil {
				return err
			}
			if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
				return err
			}
		}

		entry.TotalDebit, entry.TotalCredit = totals(lines)
		entry.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateDraftHeader(ctx, tx, entry); err != nil {
			return err
		}
		entry.Lines = lines
		updated = *entry
		return nil
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}
	return updated, nil
}

func (s *Service) DeleteDraft(ctx context.Context, tenantID, id snowflake.ID) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotFound
		}
		if entry.Status != domain.StatusDraft {
			return domain.ErrNotDraft.With("entry %s is %s", entry.ID, entry.Status)
		}
		if err := s.repo.DeleteLines(ctx, tx, tenantID, id); err != nil {
			return err
		}
		return s.repo.DeleteEntry(ctx, tx, tenantID, id)
	})
}

func (s *Service) Post(ctx context.Context, tenantID, id snowflake.ID) (domain.JournalEntry, error) {
	if tenantID == 0 {
		return domain.JournalEntry{}, domain.ErrInvalidTenant
	}

	var posted domain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotFound
		}
		if err := s.post(ctx, tx, entry); err != nil {
			return err
		}
		posted = *entry
		return nil
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}

	s.recordPosted(ctx, posted)
	return posted, nil
}

func (s *Service) CreateAndPost(ctx context.Context, tenantID snowflake.ID, req domain.CreateEntryRequest) (domain.JournalEntry, error) {
	if tenantID == 0 {
		return domain.JournalEntry{}, domain.ErrInvalidTenant
	}
	if !req.Type.UserCreatable() {
		return domain.JournalEntry{}, domain.ErrInvalidEntryType
	}

	var posted domain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.insertDraft(ctx, tx, tenantID, req)
		if err != nil {
			return err
		}
		if err := s.post(ctx, tx, &entry); err != nil {
			return err
		}
		posted = entry
		return nil
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}

	s.recordPosted(ctx, posted)
	return posted, nil
}

func (s *Service) Reverse(ctx context.Context, tenantID, id snowflake.ID) (domain.JournalEntry, error) {
	if tenantID == 0 {
		return domain.JournalEntry{}, domain.ErrInvalidTenant
	}

	var reversal domain.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if original == nil {
			return domain.ErrNotFound
		}
		switch original.Status {
		case domain.StatusDraft:
			return domain.ErrNotPosted
		case domain.StatusReversed:
			return domain.ErrAlreadyReversed
		}
		if original.Type == domain.EntryTypeReversal {
			return domain.ErrReverseOfReversal
		}

		lines, err := s.repo.ListLines(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entryDate := domain.DateOnly(now)
		originalID := original.ID
		mirror := domain.JournalEntry{
			ID:           s.genID.Generate(),
			TenantID:     tenantID,
			Period:       domain.PeriodOf(entryDate),
			EntryDate:    entryDate,
			Type:         domain.EntryTypeReversal,
			Description:  "Reversal of " + original.EntryNumber,
			Status:       domain.StatusDraft,
			ReversalOfID: &originalID,
			TotalDebit:   original.TotalCredit,
			TotalCredit:  original.TotalDebit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		mirror.Lines = make([]domain.JournalLine, 0, len(lines))
		for _, line := range lines {
			mirror.Lines = append(mirror.Lines, domain.JournalLine{
				ID:          s.genID.Generate(),
				EntryID:     mirror.ID,
				TenantID:    tenantID,
				LineNo:      line.LineNo,
				AccountID:   line.AccountID,
				Debit:       line.Credit,
				Credit:      line.Debit,
				Description: line.Description,
			})
		}

		if err := s.repo.InsertEntry(ctx, tx, &mirror); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyReversed
			}
			return err
		}
		if err := s.repo.InsertLines(ctx, tx, mirror.Lines); err != nil {
			return err
		}
		if err := s.post(ctx, tx, &mirror); err != nil {
			return err
		}

		ok, err := s.repo.MarkReversed(ctx, tx, tenantID, original.ID, mirror.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		reversal = mirror
		return nil
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}

	s.recordPosted(ctx, reversal)
	s.metrics.RecordEntryReversed(ctx)
	s.log.Info("journal entry reversed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entry_id", id.String()),
		zap.String("reversal_id", reversal.ID.String()),
		zap.String("reversal_number", reversal.EntryNumber),
	)
	return reversal, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, id snowflake.ID) (domain.JournalEntry, error) {
	if tenantID == 0 {
		return domain.JournalEntry{}, domain.ErrInvalidTenant
	}
	entry, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	if entry == nil {
		return domain.JournalEntry{}, domain.ErrNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	entry.Lines = lines
	return *entry, nil
}

func (s *Service) FindBySource(ctx context.Context, tenantID snowflake.ID, sourceModule, sourceID, eventType string) (*domain.JournalEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	entry, err := s.repo.FindBySource(ctx, s.db, tenantID, sourceModule, sourceID, eventType)
	if err != nil || entry == nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, s.db, tenantID, entry.ID)
	if err != nil {
		return nil, err
	}
	entry.Lines = lines
	return entry, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req domain.ListEntryRequest) (domain.ListEntryResponse, error) {
	if tenantID == 0 {
		return domain.ListEntryResponse{}, domain.ErrInvalidTenant
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListEntryResponse{}, domain.ErrInvalidPageToken
	}
	var afterID *snowflake.ID
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListEntryResponse{}, domain.ErrInvalidPageToken
		}
		afterID = &id
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, tenantID, req, afterID, limit+1)
	if err != nil {
		return domain.ListEntryResponse{}, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(e *domain.JournalEntry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String(), CreatedAt: e.CreatedAt.Format(time.RFC3339)}
	})
	if err != nil {
		return domain.ListEntryResponse{}, err
	}

	entries := make([]domain.JournalEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}
	return domain.ListEntryResponse{PageInfo: pageInfo, Entries: entries}, nil
}

// insertDraft validates the request structure and stores a draft with its lines.
// Balance is checked at posting time.
func (s *Service) insertDraft(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, req domain.CreateEntryRequest) (domain.JournalEntry, error) {
	if req.EntryDate.IsZero() {
		return domain.JournalEntry{}, domain.ErrInvalidEntryDate
	}
	source, err := normalizeSource(req)
	if err != nil {
		return domain.JournalEntry{}, err
	}

	now := s.clock.Now()
	entryDate := domain.DateOnly(req.EntryDate)
	entry := domain.JournalEntry{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Period:      domain.PeriodOf(entryDate),
		EntryDate:   entryDate,
		Type:        req.Type,
		Description: strings.TrimSpace(req.Description),
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if source != nil {
		entry.SourceModule = &source[0]
		entry.SourceID = &source[1]
		entry.EventType = &source[2]
	}
	if len(req.Metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(req.Metadata)
	}

	lines, err := s.buildLines(ctx, tx, tenantID, entry.ID, req.Lines)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	entry.TotalDebit, entry.TotalCredit = totals(lines)

	if err := s.repo.InsertEntry(ctx, tx, &entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.JournalEntry{}, domain.ErrDuplicateSource.Wrap(err)
		}
		return domain.JournalEntry{}, err
	}
	if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
		return domain.JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (s *Service) buildLines(ctx context.Context, tx *gorm.DB, tenantID, entryID snowflake.ID, inputs []domain.LineInput) ([]domain.JournalLine, error) {
	if len(inputs) == 0 {
		return nil, domain.ErrNoLines
	}

	accountIDs := make([]snowflake.ID, 0, len(inputs))
	for i, in := range inputs {
		if !in.Amount.Valid() {
			return nil, domain.ErrZeroAmount.With("line %d: amount must be strictly positive", i+1)
		}
		if !in.Amount.FitsScale() {
			return nil, domain.ErrAmountScale.With("line %d: %s has more than %d decimal places", i+1, in.Amount.Value(), domain.AmountScale)
		}
		if in.AccountID == 0 {
			return nil, domain.ErrInvalidLine.With("line %d: account is required", i+1)
		}
		accountIDs = append(accountIDs, in.AccountID)
	}
	if _, err := s.loadPostableAccounts(ctx, tx, tenantID, accountIDs, true); err != nil {
		return nil, err
	}

	lines := make([]domain.JournalLine, 0, len(inputs))
	for i, in := range inputs {
		debit, credit := in.Amount.Columns()
		lines = append(lines, domain.JournalLine{
			ID:          s.genID.Generate(),
			EntryID:     entryID,
			TenantID:    tenantID,
			LineNo:      i + 1,
			AccountID:   in.AccountID,
			Debit:       debit,
			Credit:      credit,
			Description: strings.TrimSpace(in.Description),
		})
	}
	return lines, nil
}

// loadPostableAccounts resolves every id to a leaf account. New lines also
// require the account to be active; posting and reversal do not.
func (s *Service) loadPostableAccounts(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, requireActive bool) (map[snowflake.ID]accountdomain.Account, error) {
	unique := uniqueIDs(ids)
	found, err := s.accountRepo.FindByIDs(ctx, tx, tenantID, unique)
	if err != nil {
		return nil, err
	}
	accounts := make(map[snowflake.ID]accountdomain.Account, len(found))
	for _, acc := range found {
		if acc != nil {
			accounts[acc.ID] = *acc
		}
	}
	for _, id := range unique {
		acc, ok := accounts[id]
		if !ok {
			return nil, domain.ErrUnknownAccount.With("account %s does not exist", id)
		}
		if acc.IsParent {
			return nil, accountdomain.ErrAccountIsParent.With("account %s is a parent account", acc.Code)
		}
		if requireActive {
			if err := accountservice.CheckPostable(acc); err != nil {
				return nil, err
			}
		}
	}
	return accounts, nil
}

func (s *Service) recordPosted(ctx context.Context, entry domain.JournalEntry) {
	s.metrics.RecordEntryPosted(ctx, string(entry.Type))
	s.log.Info("journal entry posted",
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.String("entry_number", entry.EntryNumber),
		zap.String("total", entry.TotalDebit.String()),
	)
}

func totals(lines []domain.JournalLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// normalizeSource returns nil for manual entries, or the trimmed
// (module, id, event) triple when all three are present.
func normalizeSource(req domain.CreateEntryRequest) ([]string, error) {
	module := strings.TrimSpace(req.SourceModule)
	sourceID := strings.TrimSpace(req.SourceID)
	eventType := strings.TrimSpace(req.EventType)
	if module == "" && sourceID == "" && eventType == "" {
		return nil, nil
	}
	if module == "" || sourceID == "" || eventType == "" {
		return nil, domain.ErrIncompleteSource
	}
	return []string{module, sourceID, eventType}, nil
}
