package businessflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/food-parcel/models"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the persisted store. Transactions are
// serialized through txMu, which is enough to model row locks in tests.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	households map[uuid.UUID]*models.Household
	comments   []*models.HouseholdComment
	parcels    map[uuid.UUID]*models.Parcel
	locations  map[uuid.UUID]*models.PickupLocation
	sms        map[uuid.UUID]*models.OutgoingSMS
	audits     []*models.AuditLog
	locks      map[repository.AdvisoryLock]bool

	// parcelErr is returned by parcel reads when set
	parcelErr error
}

func newMemStore() *memStore {
	return &memStore{
		households: map[uuid.UUID]*models.Household{},
		parcels:    map[uuid.UUID]*models.Parcel{},
		locations:  map[uuid.UUID]*models.PickupLocation{},
		sms:        map[uuid.UUID]*models.OutgoingSMS{},
		locks:      map[repository.AdvisoryLock]bool{},
	}
}

func (s *memStore) addHousehold(first, phone string, createdAt time.Time) *models.Household {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &models.Household{
		ID:          uuid.New(),
		FirstName:   first,
		LastName:    "Testsson",
		PhoneNumber: phone,
		Locale:      "sv",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Members:     []models.HouseholdMember{{Age: 34, Sex: "female"}},
	}
	s.households[h.ID] = h
	return h
}

func (s *memStore) addLocation(name string, maxPerDay, maxPerSlot *int) *models.PickupLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &models.PickupLocation{ID: uuid.New(), Name: name, StreetAddress: "Storgatan 1", MaxParcelsPerDay: maxPerDay, MaxParcelsPerSlot: maxPerSlot, SlotDurationMinutes: 15}
	s.locations[l.ID] = l
	return l
}

func (s *memStore) addParcel(householdID, locationID uuid.UUID, start time.Time, d time.Duration) *models.Parcel {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Parcel{
		ID:                     uuid.New(),
		HouseholdID:            householdID,
		PickupLocationID:       locationID,
		PickupDateTimeEarliest: start,
		PickupDateTimeLatest:   start.Add(d),
	}
	s.parcels[p.ID] = p
	return p
}

func (s *memStore) softDelete(p *models.Parcel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	p.DeletedAt = &now
	p.DeletedBy = utils.ToPtr("admin:1")
}

func (s *memStore) addComment(householdID uuid.UUID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, &models.HouseholdComment{ID: uint(len(s.comments) + 1), HouseholdID: householdID, Author: "staff", Body: body})
}

func (s *memStore) household(id uuid.UUID) *models.Household {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.households[id]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

func (s *memStore) smsRecords() []*models.OutgoingSMS {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.OutgoingSMS, 0, len(s.sms))
	for _, r := range s.sms {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) commentCount(householdID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.comments {
		if c.HouseholdID == householdID {
			n++
		}
	}
	return n
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

// --- transactor ---

type txMarker struct{}

type fakeTransactor struct{ s *memStore }

func (t fakeTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()
	return fn(context.WithValue(ctx, txMarker{}, true))
}

func (t fakeTransactor) WithAdvisoryLock(ctx context.Context, lock repository.AdvisoryLock, fn func(context.Context) error) (bool, error) {
	if _, err := lock.ID(); err != nil {
		return false, err
	}
	t.s.mu.Lock()
	if t.s.locks[lock] {
		t.s.mu.Unlock()
		return false, nil
	}
	t.s.locks[lock] = true
	t.s.mu.Unlock()
	defer func() {
		t.s.mu.Lock()
		delete(t.s.locks, lock)
		t.s.mu.Unlock()
	}()
	return true, fn(ctx)
}

// --- households ---

type fakeHouseholdRepo struct{ s *memStore }

func (r fakeHouseholdRepo) ByID(ctx context.Context, id uuid.UUID) (*models.Household, error) {
	return r.s.household(id), nil
}

func (r fakeHouseholdRepo) ByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Household, error) {
	return r.s.household(id), nil
}

func (r fakeHouseholdRepo) ByFilter(ctx context.Context, f models.HouseholdFilter, orderBy string, limit, offset int) ([]*models.Household, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Household
	for _, h := range r.s.households {
		if f.ID != nil && h.ID != *f.ID {
			continue
		}
		if f.PhoneNumber != nil && h.PhoneNumber != *f.PhoneNumber {
			continue
		}
		if f.IsAnonymized != nil && h.IsAnonymized() != *f.IsAnonymized {
			continue
		}
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (r fakeHouseholdRepo) Save(ctx context.Context, h *models.Household) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *h
	r.s.households[h.ID] = &cp
	return nil
}

func (r fakeHouseholdRepo) SaveBatch(ctx context.Context, hs []*models.Household) error {
	for _, h := range hs {
		_ = r.Save(ctx, h)
	}
	return nil
}

func (r fakeHouseholdRepo) Count(ctx context.Context, f models.HouseholdFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r fakeHouseholdRepo) Exists(ctx context.Context, f models.HouseholdFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r fakeHouseholdRepo) HardDelete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.households[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.households, id)
	for pid, p := range r.s.parcels {
		if p.HouseholdID == id {
			delete(r.s.parcels, pid)
		}
	}
	for sid, m := range r.s.sms {
		if m.HouseholdID == id {
			delete(r.s.sms, sid)
		}
	}
	r.s.comments = dropComments(r.s.comments, id)
	return nil
}

func (r fakeHouseholdRepo) Anonymize(ctx context.Context, id uuid.UUID, phone, performedBy string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.households[id]
	if !ok || h.IsAnonymized() {
		return gorm.ErrRecordNotFound
	}
	h.FirstName = utils.AnonymizedFirstName
	h.LastName = utils.AnonymizedLastName
	h.PhoneNumber = phone
	h.AnonymizedAt = &at
	h.AnonymizedBy = &performedBy
	h.UpdatedAt = at
	return nil
}

func (r fakeHouseholdRepo) DeleteComments(ctx context.Context, householdID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	before := len(r.s.comments)
	r.s.comments = dropComments(r.s.comments, householdID)
	return int64(before - len(r.s.comments)), nil
}

func dropComments(in []*models.HouseholdComment, householdID uuid.UUID) []*models.HouseholdComment {
	out := in[:0]
	for _, c := range in {
		if c.HouseholdID != householdID {
			out = append(out, c)
		}
	}
	return out
}

func (r fakeHouseholdRepo) LockPhoneSequence(ctx context.Context) error {
	if ctx.Value(txMarker{}) == nil {
		return errors.New("phone sequence lock requires a transaction")
	}
	return nil
}

func (r fakeHouseholdRepo) MaxAnonymizedPhoneSequence(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var max int64
	for _, h := range r.s.households {
		if !h.IsAnonymized() || !strings.HasPrefix(h.PhoneNumber, utils.AnonymizedPhonePrefix) {
			continue
		}
		var n int64
		for _, ch := range strings.TrimPrefix(h.PhoneNumber, utils.AnonymizedPhonePrefix) {
			n = n*10 + int64(ch-'0')
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (r fakeHouseholdRepo) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]*models.InactiveHousehold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.InactiveHousehold
	for _, h := range r.s.households {
		if h.IsAnonymized() {
			continue
		}
		last := h.CreatedAt
		seen := false
		for _, p := range r.s.parcels {
			if p.HouseholdID != h.ID {
				continue
			}
			if !seen || p.PickupDateTimeEarliest.After(last) {
				last = p.PickupDateTimeEarliest
				seen = true
			}
		}
		if last.Before(cutoff) {
			out = append(out, &models.InactiveHousehold{Household: *h, LastParcelAt: last})
		}
	}
	return out, nil
}

func (r fakeHouseholdRepo) SaveComment(ctx context.Context, c *models.HouseholdComment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.comments = append(r.s.comments, c)
	return nil
}

// --- parcels ---

type fakeParcelRepo struct{ s *memStore }

func matchParcel(p *models.Parcel, f models.ParcelFilter) bool {
	if !f.IncludeDeleted && p.IsDeleted() {
		return false
	}
	if f.ID != nil && p.ID != *f.ID {
		return false
	}
	if f.HouseholdID != nil && p.HouseholdID != *f.HouseholdID {
		return false
	}
	if f.PickupLocationID != nil && p.PickupLocationID != *f.PickupLocationID {
		return false
	}
	if f.ExcludeID != nil && p.ID == *f.ExcludeID {
		return false
	}
	if f.StartsAtOrAfter != nil && p.PickupDateTimeEarliest.Before(*f.StartsAtOrAfter) {
		return false
	}
	if f.StartsBefore != nil && !p.PickupDateTimeEarliest.Before(*f.StartsBefore) {
		return false
	}
	if f.WindowEndsAfter != nil && !p.PickupDateTimeLatest.After(*f.WindowEndsAfter) {
		return false
	}
	if f.IsPickedUp != nil && p.IsPickedUp != *f.IsPickedUp {
		return false
	}
	return true
}

func (r fakeParcelRepo) ByID(ctx context.Context, id uuid.UUID) (*models.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.parcelErr != nil {
		return nil, r.s.parcelErr
	}
	p, ok := r.s.parcels[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r fakeParcelRepo) ByFilter(ctx context.Context, f models.ParcelFilter, orderBy string, limit, offset int) ([]*models.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.parcelErr != nil {
		return nil, r.s.parcelErr
	}
	var out []*models.Parcel
	for _, p := range r.s.parcels {
		if matchParcel(p, f) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupDateTimeEarliest.Before(out[j].PickupDateTimeEarliest) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeParcelRepo) Save(ctx context.Context, p *models.Parcel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *p
	r.s.parcels[p.ID] = &cp
	return nil
}

func (r fakeParcelRepo) SaveBatch(ctx context.Context, ps []*models.Parcel) error {
	for _, p := range ps {
		_ = r.Save(ctx, p)
	}
	return nil
}

func (r fakeParcelRepo) Count(ctx context.Context, f models.ParcelFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), err
}

func (r fakeParcelRepo) Exists(ctx context.Context, f models.ParcelFilter) (bool, error) {
	c, err := r.Count(ctx, f)
	return c > 0, err
}

func (r fakeParcelRepo) FindOverlapping(ctx context.Context, locationID uuid.UUID, w models.TimeWindow, excludeID *uuid.UUID) ([]*models.Parcel, error) {
	rows, err := r.ByFilter(ctx, models.ParcelFilter{PickupLocationID: &locationID, ExcludeID: excludeID}, "", 0, 0)
	if err != nil {
		return nil, err
	}
	var out []*models.Parcel
	for _, p := range rows {
		if (models.TimeWindow{Start: p.PickupDateTimeEarliest, End: p.PickupDateTimeLatest}).Overlaps(w) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r fakeParcelRepo) ListReminderCandidates(ctx context.Context, now, horizonEnd time.Time, intent string, limit int) ([]*models.ReminderCandidate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ReminderCandidate
	for _, p := range r.s.parcels {
		if p.IsDeleted() || p.IsPickedUp || p.PickupDateTimeEarliest.After(horizonEnd) || !p.PickupDateTimeLatest.After(now) {
			continue
		}
		h := r.s.households[p.HouseholdID]
		if h == nil || h.IsAnonymized() {
			continue
		}
		claimed := false
		for _, m := range r.s.sms {
			if m.ParcelID != nil && *m.ParcelID == p.ID && m.Intent == intent {
				claimed = true
				break
			}
		}
		if claimed {
			continue
		}
		out = append(out, &models.ReminderCandidate{Parcel: *p, HouseholdPhone: h.PhoneNumber, HouseholdLocale: h.Locale, LocationName: r.s.locations[p.PickupLocationID].Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupDateTimeEarliest.Before(out[j].PickupDateTimeEarliest) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- pickup locations ---

type fakeLocationRepo struct{ s *memStore }

func (r fakeLocationRepo) ByID(ctx context.Context, id uuid.UUID) (*models.PickupLocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.locations[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r fakeLocationRepo) ByFilter(ctx context.Context, f models.PickupLocationFilter, orderBy string, limit, offset int) ([]*models.PickupLocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PickupLocation
	for _, l := range r.s.locations {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r fakeLocationRepo) Save(ctx context.Context, l *models.PickupLocation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *l
	r.s.locations[l.ID] = &cp
	return nil
}

func (r fakeLocationRepo) SaveBatch(ctx context.Context, ls []*models.PickupLocation) error {
	for _, l := range ls {
		_ = r.Save(ctx, l)
	}
	return nil
}

func (r fakeLocationRepo) Count(ctx context.Context, f models.PickupLocationFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r fakeLocationRepo) Exists(ctx context.Context, f models.PickupLocationFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

// --- outgoing sms ---

type fakeSMSRepo struct{ s *memStore }

func matchSMS(m *models.OutgoingSMS, f models.OutgoingSMSFilter) bool {
	if f.ID != nil && m.ID != *f.ID {
		return false
	}
	if f.ParcelID != nil && (m.ParcelID == nil || *m.ParcelID != *f.ParcelID) {
		return false
	}
	if f.HouseholdID != nil && m.HouseholdID != *f.HouseholdID {
		return false
	}
	if f.Intent != nil && m.Intent != *f.Intent {
		return false
	}
	if f.Status != nil && m.Status != *f.Status {
		return false
	}
	if f.IdempotencyKey != nil && m.IdempotencyKey != *f.IdempotencyKey {
		return false
	}
	if f.CreatedAfter != nil && m.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !m.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func (r fakeSMSRepo) ByID(ctx context.Context, id uuid.UUID) (*models.OutgoingSMS, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.sms[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r fakeSMSRepo) ByFilter(ctx context.Context, f models.OutgoingSMSFilter, orderBy string, limit, offset int) ([]*models.OutgoingSMS, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.OutgoingSMS
	for _, m := range r.s.sms {
		if matchSMS(m, f) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeSMSRepo) Save(ctx context.Context, m *models.OutgoingSMS) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sms {
		if existing.IdempotencyKey == m.IdempotencyKey {
			return repository.ErrDuplicateIdempotencyKey
		}
	}
	cp := *m
	r.s.sms[m.ID] = &cp
	return nil
}

func (r fakeSMSRepo) SaveBatch(ctx context.Context, ms []*models.OutgoingSMS) error {
	for _, m := range ms {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r fakeSMSRepo) Count(ctx context.Context, f models.OutgoingSMSFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r fakeSMSRepo) Exists(ctx context.Context, f models.OutgoingSMSFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r fakeSMSRepo) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID *string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.sms[id]
	m.Status = models.SMSStatusSent
	m.ProviderMessageID = providerMessageID
	m.SentAt = &at
	m.Attempts++
	return nil
}

func (r fakeSMSRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.s.sms[id]
	m.Status = models.SMSStatusFailed
	m.LastError = &reason
	m.Attempts++
	return nil
}

func (r fakeSMSRepo) RecoverStale(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.sms {
		if m.Status == models.SMSStatusSending && m.CreatedAt.Before(olderThan) {
			m.Status = models.SMSStatusFailed
			m.LastError = utils.ToPtr(reason)
			n++
		}
	}
	return n, nil
}

func (r fakeSMSRepo) DeleteByHousehold(ctx context.Context, householdID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.sms {
		if m.HouseholdID == householdID {
			delete(r.s.sms, id)
			n++
		}
	}
	return n, nil
}

func (r fakeSMSRepo) CountByStatus(ctx context.Context, since *time.Time) ([]*models.SMSStatusCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[models.SMSStatus]int64{}
	for _, m := range r.s.sms {
		if since != nil && m.CreatedAt.Before(*since) {
			continue
		}
		counts[m.Status]++
	}
	var out []*models.SMSStatusCount
	for st, c := range counts {
		out = append(out, &models.SMSStatusCount{Status: st, Count: c})
	}
	return out, nil
}

// --- audit ---

type fakeAuditRepo struct{ s *memStore }

func (r fakeAuditRepo) ByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	return nil, nil
}

func (r fakeAuditRepo) ByFilter(ctx context.Context, f models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.AuditLog
	for _, a := range r.s.audits {
		if f.Action != nil && a.Action != *f.Action {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r fakeAuditRepo) Save(ctx context.Context, a *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, a)
	return nil
}

func (r fakeAuditRepo) SaveBatch(ctx context.Context, as []*models.AuditLog) error {
	for _, a := range as {
		_ = r.Save(ctx, a)
	}
	return nil
}

func (r fakeAuditRepo) Count(ctx context.Context, f models.AuditLogFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r fakeAuditRepo) Exists(ctx context.Context, f models.AuditLogFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r fakeAuditRepo) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{Action: &action}, "", limit, offset)
}

var (
	_ repository.HouseholdRepository      = fakeHouseholdRepo{}
	_ repository.ParcelRepository         = fakeParcelRepo{}
	_ repository.PickupLocationRepository = fakeLocationRepo{}
	_ repository.OutgoingSMSRepository    = fakeSMSRepo{}
	_ repository.AuditLogRepository       = fakeAuditRepo{}
	_ repository.Transactor               = fakeTransactor{}
)
