// Package memstore is an in-process implementation of the repository
// contracts for tests that need real transaction semantics without Postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/pitch-booking/internal/domain"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
)

// Store is an in-process store with the same contracts as the Postgres
// repositories. Transactions are serialized by a single lock and applied to a
// copy of the data, so a failed transaction leaves no trace.
type Store struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	venues     map[string]*domain.Venue
	exceptions []domain.ScheduleException
	bookings   map[string]*domain.Booking
	groups     map[string]*domain.RecurrenceGroup
	guests     map[string]*domain.Guest // key: venueID + "|" + phone
	users      map[string]string        // phone -> user id
}

// New creates an empty Store
func New() *Store {
	return &Store{state: &memoryState{
		venues:   make(map[string]*domain.Venue),
		bookings: make(map[string]*domain.Booking),
		groups:   make(map[string]*domain.RecurrenceGroup),
		guests:   make(map[string]*domain.Guest),
		users:    make(map[string]string),
	}}
}

// AddVenue stores v
func (s *Store) AddVenue(v *domain.Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.state.venues[v.ID] = &cp
}

// AddException stores x
func (s *Store) AddException(x domain.ScheduleException) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.exceptions = append(s.state.exceptions, x)
}

// AddUser registers an account for phone
func (s *Store) AddUser(userID, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[phone] = userID
}

// Counts reports stored bookings and recurrence groups
func (s *Store) Counts() (bookings, groups int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.bookings), len(s.state.groups)
}

// Repositories returns repositories that lock the store per call
func (s *Store) Repositories() *repository.Repositories {
	return s.repos(func() func() {
		s.mu.Lock()
		return s.mu.Unlock
	}, func() *memoryState { return s.state })
}

// RunSerializable implements repository.Transactor
func (s *Store) RunSerializable(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	repos := s.repos(func() func() { return func() {} }, func() *memoryState { return work })
	if err := fn(ctx, repos); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) repos(lock func() func(), state func() *memoryState) *repository.Repositories {
	m := &memoryRepos{lock: lock, state: state}
	return &repository.Repositories{
		Venues:   (*memoryVenues)(m),
		Bookings: (*memoryBookings)(m),
		Guests:   (*memoryGuests)(m),
		Users:    (*memoryUsers)(m),
	}
}

func (st *memoryState) clone() *memoryState {
	out := &memoryState{
		venues:     make(map[string]*domain.Venue, len(st.venues)),
		exceptions: append([]domain.ScheduleException(nil), st.exceptions...),
		bookings:   make(map[string]*domain.Booking, len(st.bookings)),
		groups:     make(map[string]*domain.RecurrenceGroup, len(st.groups)),
		guests:     make(map[string]*domain.Guest, len(st.guests)),
		users:      make(map[string]string, len(st.users)),
	}
	for k, v := range st.venues {
		cp := *v
		out.venues[k] = &cp
	}
	for k, v := range st.bookings {
		cp := *v
		out.bookings[k] = &cp
	}
	for k, v := range st.groups {
		cp := *v
		out.groups[k] = &cp
	}
	for k, v := range st.guests {
		cp := *v
		out.guests[k] = &cp
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	return out
}

type memoryRepos struct {
	lock  func() func()
	state func() *memoryState
}

type (
	memoryVenues   memoryRepos
	memoryBookings memoryRepos
	memoryGuests   memoryRepos
	memoryUsers    memoryRepos
)

func (r *memoryVenues) GetByID(ctx context.Context, id string) (*domain.Venue, error) {
	defer r.lock()()
	v, ok := r.state().venues[id]
	if !ok {
		return nil, domain.ErrVenueNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *memoryVenues) UpdateSchedule(ctx context.Context, venueID string, schedule domain.Schedule) error {
	defer r.lock()()
	v, ok := r.state().venues[venueID]
	if !ok {
		return domain.ErrVenueNotFound
	}
	v.Schedule = schedule.Normalized()
	v.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryVenues) ListExceptions(ctx context.Context, venueID string, start, end time.Time) ([]domain.ScheduleException, error) {
	defer r.lock()()
	var out []domain.ScheduleException
	for _, x := range r.state().exceptions {
		if x.VenueID == venueID && domain.Overlaps(x.StartTime, x.EndTime, start, end) {
			out = append(out, x)
		}
	}
	return out, nil
}

func (r *memoryBookings) Create(ctx context.Context, b *domain.Booking) error {
	defer r.lock()()
	st := r.state()
	for _, other := range st.bookings {
		if other.ConflictsWith(b.GroundIDs, b.StartTime, b.EndTime) {
			return &domain.UnavailableError{Slots: []domain.SlotConflict{{
				Start:  b.StartTime,
				End:    b.EndTime,
				Reason: "slot was booked by a concurrent request",
			}}}
		}
	}
	cp := *b
	st.bookings[b.ID] = &cp
	return nil
}

func (r *memoryBookings) CreateRecurrenceGroup(ctx context.Context, g *domain.RecurrenceGroup) error {
	defer r.lock()()
	cp := *g
	r.state().groups[g.ID] = &cp
	return nil
}

func (r *memoryBookings) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	defer r.lock()()
	b, ok := r.state().bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memoryBookings) ListActiveByGrounds(ctx context.Context, groundIDs []string, start, end time.Time) ([]*domain.Booking, error) {
	defer r.lock()()
	var out []*domain.Booking
	for _, b := range r.state().bookings {
		if b.ConflictsWith(groundIDs, start, end) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sortBookings(out, false)
	return out, nil
}

func (r *memoryBookings) List(ctx context.Context, f repository.BookingFilter) ([]*domain.Booking, int64, error) {
	defer r.lock()()
	var matched []*domain.Booking
	for _, b := range r.state().bookings {
		if matchesFilter(b, f) {
			cp := *b
			matched = append(matched, &cp)
		}
	}
	sortBookings(matched, true)

	total := int64(len(matched))
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	end := f.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], total, nil
}

func (r *memoryBookings) UpdateStatus(ctx context.Context, u repository.StatusUpdate) (bool, error) {
	defer r.lock()()
	b, ok := r.state().bookings[u.BookingID]
	if !ok || b.Status != u.From {
		return false, nil
	}
	b.Status = u.To
	b.StatusReason = u.Reason
	if u.CancellationFee > 0 {
		b.CancellationFee = u.CancellationFee
	}
	if u.To == domain.BookingStatusCancelled {
		at := u.At
		b.CancelledAt = &at
	}
	b.UpdatedAt = u.At
	return true, nil
}

func (r *memoryBookings) ListDue(ctx context.Context, status domain.BookingStatus, field repository.DueField, now time.Time, limit int) ([]*domain.Booking, error) {
	defer r.lock()()
	var out []*domain.Booking
	for _, b := range r.state().bookings {
		if b.Status != status {
			continue
		}
		var at time.Time
		switch field {
		case repository.DuePaymentDeadline:
			if b.IsPaid || b.PaymentMethod == domain.PaymentMethodCash {
				continue
			}
			at = b.PaymentDeadline
		case repository.DueStartTime:
			at = b.StartTime
		case repository.DueEndTime:
			at = b.EndTime
		}
		if !at.After(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sortBookings(out, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryGuests) FindOrCreate(ctx context.Context, g *domain.Guest) (*domain.Guest, error) {
	defer r.lock()()
	key := g.VenueID + "|" + g.Phone
	st := r.state()
	if existing, ok := st.guests[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *g
	st.guests[key] = &cp
	out := cp
	return &out, nil
}

func (r *memoryUsers) FindUserIDByPhone(ctx context.Context, phone string) (string, bool, error) {
	defer r.lock()()
	id, ok := r.state().users[phone]
	return id, ok, nil
}

func matchesFilter(b *domain.Booking, f repository.BookingFilter) bool {
	if f.VenueID != "" && b.VenueID != f.VenueID {
		return false
	}
	if f.TargetKind != "" && b.TargetKind != f.TargetKind {
		return false
	}
	if f.TargetID != "" && b.TargetID != f.TargetID {
		return false
	}
	if f.Start != nil && !b.EndTime.After(*f.Start) {
		return false
	}
	if f.End != nil && !b.StartTime.Before(*f.End) {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if b.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

func sortBookings(bs []*domain.Booking, desc bool) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].StartTime.Equal(bs[j].StartTime) {
			if desc {
				return bs[i].StartTime.After(bs[j].StartTime)
			}
			return bs[i].StartTime.Before(bs[j].StartTime)
		}
		return bs[i].ID < bs[j].ID
	})
}

var (
	_ repository.Transactor        = (*Store)(nil)
	_ repository.VenueRepository   = (*memoryVenues)(nil)
	_ repository.BookingRepository = (*memoryBookings)(nil)
	_ repository.GuestRepository   = (*memoryGuests)(nil)
	_ repository.UserDirectory     = (*memoryUsers)(nil)
)
