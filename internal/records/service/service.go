// Package service creates and reads protected patient records. Identifying
// fields are encrypted before they reach the store and decrypted only for
// callers the role policy lets see them.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/records/metrics"
	"oncocentre/internal/records/models"
	"oncocentre/internal/records/policy"
	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

var tracer = otel.Tracer("oncocentre/internal/records/service")

type Store interface {
	Create(ctx context.Context, rec *models.ProtectedRecord) error
	FindByExternalID(ctx context.Context, externalID string) (*models.ProtectedRecord, error)
	FindByIPPIndex(ctx context.Context, creator id.IdentityID, index string) ([]*models.ProtectedRecord, error)
	List(ctx context.Context) ([]*models.ProtectedRecord, error)
	ListByCreator(ctx context.Context, creator id.IdentityID) ([]*models.ProtectedRecord, error)
	CountByCreator(ctx context.Context, creator id.IdentityID) (int, error)
	Count(ctx context.Context) (int, error)
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	BlindIndex(value string) string
}

// IdentifierIssuer mints external identifiers. *sequence.Generator satisfies it.
type IdentifierIssuer interface {
	NextIdentifier(ctx context.Context, year int) (string, error)
	Issue(ctx context.Context, year int, persist func(ctx context.Context, externalID string) error) (string, error)
}

// TxRunner provides a transactional boundary for record writes.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	store          Store
	cipher         Cipher
	ids            IdentifierIssuer
	tx             TxRunner
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Emitter
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTx runs each record insert in a transaction.
func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(store Store, cipher Cipher, ids IdentifierIssuer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cipher: cipher,
		ids:    ids,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a patient for caller. The role check runs before anything
// touches the store, then the input is validated and encrypted. Under the
// identifier lock it is checked against the caller's existing patients and
// stored under a fresh identifier.
func (s *Service) Create(ctx context.Context, caller *authModels.Identity, input models.PatientInput) (*models.Patient, error) {
	ctx, span := tracer.Start(ctx, "records.create")
	defer span.End()
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCreate(start)
		}
	}()

	decision := policy.Decide(caller, policy.ActionCreate)
	if !decision.Allowed {
		s.denied(ctx, caller, policy.ActionCreate, decision)
		span.SetStatus(codes.Error, "forbidden")
		return nil, decision.Err()
	}

	input.Normalize()
	now := requestcontext.Now(ctx)
	if err := input.Validate(now); err != nil {
		return nil, err
	}

	rec, err := s.seal(caller.ID, input, now)
	if err != nil {
		return nil, err
	}

	// The duplicate check shares the year lock and the transaction with the
	// insert, so two registrations of one IPP cannot both pass it.
	externalID, err := s.ids.Issue(ctx, now.Year(), func(ctx context.Context, externalID string) error {
		rec.ExternalID = externalID
		return s.inTx(ctx, func(ctx context.Context) error {
			if err := s.checkDuplicateIPP(ctx, caller.ID, input.IPP); err != nil {
				return err
			}
			return s.store.Create(ctx, rec)
		})
	})
	if err != nil {
		span.RecordError(err)
		var de *dErrors.Error
		if errors.As(err, &de) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
	}
	span.SetAttributes(attribute.String("record.external_id", externalID))

	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	audit.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRecordCreated,
		"external_id", externalID,
		"actor", caller.Username)

	return &models.Patient{
		ExternalID: externalID,
		IPP:        input.IPP,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		BirthDate:  input.BirthDate,
		Sex:        input.Sex,
		CreatedBy:  caller.ID,
		CreatedAt:  now,
	}, nil
}

// checkDuplicateIPP refuses a second record with the same IPP for one
// creator. The blind index narrows candidates; the decrypted value decides.
func (s *Service) checkDuplicateIPP(ctx context.Context, creator id.IdentityID, ipp string) error {
	candidates, err := s.store.FindByIPPIndex(ctx, creator, s.cipher.BlindIndex(ipp))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for duplicate patient")
	}
	for _, c := range candidates {
		existing, err := s.cipher.Decrypt(c.IPPCiphertext)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable record in duplicate check",
				"external_id", c.ExternalID, "error", err)
			continue
		}
		if existing == ipp {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("a patient with this IPP already exists as %s", c.ExternalID))
		}
	}
	return nil
}

func (s *Service) seal(creator id.IdentityID, in models.PatientInput, now time.Time) (*models.ProtectedRecord, error) {
	rec := &models.ProtectedRecord{
		ID:        id.NewRecordID(),
		IPPIndex:  s.cipher.BlindIndex(in.IPP),
		Sex:       in.Sex,
		CreatedBy: creator,
		CreatedAt: now,
	}
	fields := []struct {
		dst   *string
		plain string
	}{
		{&rec.IPPCiphertext, in.IPP},
		{&rec.FirstNameCiphertext, in.FirstName},
		{&rec.LastNameCiphertext, in.LastName},
		{&rec.BirthDateCiphertext, in.BirthDate},
	}
	for _, f := range fields {
		sealed, err := s.cipher.Encrypt(f.plain)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt record")
		}
		*f.dst = sealed
	}
	return rec, nil
}

func (s *Service) open(rec *models.ProtectedRecord) (*models.Patient, error) {
	p := &models.Patient{
		ExternalID: rec.ExternalID,
		Sex:        rec.Sex,
		CreatedBy:  rec.CreatedBy,
		CreatedAt:  rec.CreatedAt,
	}
	fields := []struct {
		dst    *string
		sealed string
	}{
		{&p.IPP, rec.IPPCiphertext},
		{&p.FirstName, rec.FirstNameCiphertext},
		{&p.LastName, rec.LastNameCiphertext},
		{&p.BirthDate, rec.BirthDateCiphertext},
	}
	for _, f := range fields {
		plain, err := s.cipher.Decrypt(f.sealed)
		if err != nil {
			return nil, err
		}
		*f.dst = plain
	}
	return p, nil
}

// List returns the records caller may see, newest first. Records that fail
// to decrypt are reported in Unreadable and flagged for an operator; the
// rest of the listing is still returned.
func (s *Service) List(ctx context.Context, caller *authModels.Identity) (*models.Listing, error) {
	decision := policy.Decide(caller, policy.ActionList)
	if !decision.Allowed {
		s.denied(ctx, caller, policy.ActionList, decision)
		return nil, decision.Err()
	}

	var (
		recs []*models.ProtectedRecord
		err  error
	)
	if decision.Scope == policy.ScopeAll {
		recs, err = s.store.List(ctx)
	} else {
		recs, err = s.store.ListByCreator(ctx, caller.ID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}

	listing := &models.Listing{Records: make([]models.Patient, 0, len(recs))}
	for _, rec := range recs {
		p, err := s.open(rec)
		if err != nil {
			s.unreadable(ctx, rec, err)
			listing.Unreadable = append(listing.Unreadable, models.UnreadableRecord{
				ExternalID: rec.ExternalID,
				CreatedBy:  rec.CreatedBy,
				CreatedAt:  rec.CreatedAt,
				Reason:     "encrypted fields could not be read with the current key",
			})
			continue
		}
		listing.Records = append(listing.Records, *p)
	}
	return listing, nil
}

// Get returns one record. Records outside the caller's scope are reported as
// not found. A record that exists but cannot be decrypted is an integrity
// fault and reported as such, never as empty data.
func (s *Service) Get(ctx context.Context, caller *authModels.Identity, externalID string) (*models.Patient, error) {
	decision := policy.Decide(caller, policy.ActionRead)
	if !decision.Allowed {
		s.denied(ctx, caller, policy.ActionRead, decision)
		return nil, decision.Err()
	}

	rec, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if decision.Scope == policy.ScopeOwn && rec.CreatedBy != caller.ID {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}

	p, err := s.open(rec)
	if err != nil {
		s.unreadable(ctx, rec, err)
		return nil, dErrors.Wrap(err, dErrors.CodeCorruptedCiphertext,
			fmt.Sprintf("record %s is unreadable; an operator must restore the matching key", rec.ExternalID))
	}
	return p, nil
}

// PreviewNextIdentifier shows the identifier the next record would likely
// receive. Concurrent creations may take it first.
func (s *Service) PreviewNextIdentifier(ctx context.Context, caller *authModels.Identity) (string, error) {
	decision := policy.Decide(caller, policy.ActionPreview)
	if !decision.Allowed {
		s.denied(ctx, caller, policy.ActionPreview, decision)
		return "", decision.Err()
	}
	return s.ids.NextIdentifier(ctx, requestcontext.Now(ctx).Year())
}

// CountByCreator is used by user administration; it applies no role policy.
func (s *Service) CountByCreator(ctx context.Context, creator id.IdentityID) (int, error) {
	n, err := s.store.CountByCreator(ctx, creator)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count records")
	}
	return n, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count records")
	}
	return n, nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) unreadable(ctx context.Context, rec *models.ProtectedRecord, err error) {
	if s.metrics != nil {
		s.metrics.IncrementUnreadable()
	}
	s.logger.ErrorContext(ctx, "protected record could not be decrypted",
		"external_id", rec.ExternalID, "error", err)
	audit.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRecordUnreadable,
		"external_id", rec.ExternalID,
		"reason", "decrypt failed")
}

func (s *Service) denied(ctx context.Context, caller *authModels.Identity, action policy.Action, d policy.Decision) {
	if s.metrics != nil {
		s.metrics.IncrementAccessDenied(string(action))
	}
	username := ""
	if caller != nil {
		username = caller.Username
	}
	audit.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRecordDenied,
		"username", username,
		"action", string(action),
		"decision", "denied",
		"reason", d.Reason)
}
