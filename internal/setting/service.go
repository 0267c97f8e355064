package setting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ashrafnet/CommunityServer/internal/apperr"
	"github.com/Ashrafnet/CommunityServer/internal/password"
	"github.com/Ashrafnet/CommunityServer/internal/setting/entity"
)

// Store is the persistence the service needs; *repo.Repo implements it.
type Store interface {
	GetByID(ctx context.Context, id string) (*entity.Setting, error)
	Upsert(ctx context.Context, s *entity.Setting) error
}

// Service encapsulates business logic for settings and depends on a repo.
type Service struct {
	repo   Store
	logger *zap.SugaredLogger
}

// NewService constructs a Service with the provided repository.
func NewService(r Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, logger: logger}
}

// ErrNotFound is returned by Get when no setting has the id.
var ErrNotFound = errors.New("not found")

// Get returns a setting by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Setting, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func passwordSettingID(tenantID int64) string {
	return fmt.Sprintf("password:%d", tenantID)
}

// LoadPasswordSettings returns the tenant's password settings, or the
// defaults when the tenant has none stored.
func (s *Service) LoadPasswordSettings(ctx context.Context, tenantID int64) (password.Settings, error) {
	st, err := s.Get(ctx, passwordSettingID(tenantID))
	if errors.Is(err, ErrNotFound) {
		return password.DefaultSettings(), nil
	}
	if err != nil {
		return password.Settings{}, fmt.Errorf("load password settings: %w", err)
	}
	var out password.Settings
	if err := json.Unmarshal(st.Metadata, &out); err != nil {
		return password.Settings{}, apperr.Wrap(apperr.CodeInvalidSettings, "decode password settings", err)
	}
	if err := out.Validate(); err != nil {
		return password.Settings{}, err
	}
	return out, nil
}

// SavePasswordSettings validates and stores the tenant's password settings.
func (s *Service) SavePasswordSettings(ctx context.Context, tenantID int64, ps password.Settings) error {
	if err := ps.Validate(); err != nil {
		return err
	}
	meta, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encode password settings: %w", err)
	}
	st := entity.NewSetting(passwordSettingID(tenantID), "", "", entity.CategoryPasswordPolicy, nil, meta)
	if err := s.repo.Upsert(ctx, st); err != nil {
		return fmt.Errorf("save password settings: %w", err)
	}
	s.logger.Infow("password settings saved",
		"tenant_id", tenantID,
		"min_length", ps.MinLength,
		"upper_case", ps.UpperCase,
		"digits", ps.Digits,
		"spec_symbols", ps.SpecSymbols,
	)
	return nil
}
