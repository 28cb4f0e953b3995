package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/jobs"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListExpirableDrafts(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockStore) ListCompletable(ctx context.Context, now time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockStore) ListNoShowCandidates(ctx context.Context, now time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockStore) ApplyTransition(ctx context.Context, kind models.BookingKind, id string, tr db.Transition) (bool, error) {
	args := m.Called(ctx, kind, id, tr)
	return args.Bool(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, key string, value []byte) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, kind models.BookingKind, bookingID, owner string) (bool, error) {
	args := m.Called(ctx, kind, bookingID, owner)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, kind models.BookingKind, bookingID, owner string) error {
	args := m.Called(ctx, kind, bookingID, owner)
	return args.Error(0)
}

var jobTopics = config.TopicConfig{
	BookingConfirmed: "bookings.confirmed",
	BookingCanceled:  "bookings.canceled",
	BookingCompleted: "bookings.completed",
	BookingExpired:   "bookings.expired",
	BookingNoShow:    "bookings.no_show",
}

func candidate(kind models.BookingKind, id string) models.Booking {
	return models.Booking{Kind: kind, BookingFields: models.BookingFields{
		BookingID:   id,
		UserID:      "user-1",
		AssetName:   "Some Asset",
		Status:      models.BookingConfirmed,
		FinalAmount: 120.0,
	}}
}

func TestExpireDraftBookings(t *testing.T) {
	store := new(MockStore)
	kafka := new(MockPublisher)
	j := jobs.New(store, kafka, nil, jobTopics, 30*time.Minute, logger.NewLogger())

	drafts := []models.Booking{
		candidate(models.KindActivity, "bk-1"),
		candidate(models.KindEvent, "bk-2"),
	}
	store.On("ListExpirableDrafts", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		// Cutoff sits one TTL behind now
		return time.Since(cutoff) > 29*time.Minute && time.Since(cutoff) < 31*time.Minute
	})).Return(drafts, nil)

	expireTr := mock.MatchedBy(func(tr db.Transition) bool {
		return tr.To.Status == models.BookingExpired && tr.To.PaymentStatus == models.PayCanceled
	})
	store.On("ApplyTransition", mock.Anything, models.KindActivity, "bk-1", expireTr).Return(true, nil)
	store.On("ApplyTransition", mock.Anything, models.KindEvent, "bk-2", expireTr).Return(true, nil)
	kafka.On("Publish", "bookings.expired", mock.Anything, mock.Anything).Return(nil).Twice()

	applied, err := j.ExpireDraftBookings(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, applied)
	store.AssertExpectations(t)
	kafka.AssertExpectations(t)
}

func TestExpireSkipsBookingThatPaidMeanwhile(t *testing.T) {
	store := new(MockStore)
	kafka := new(MockPublisher)
	j := jobs.New(store, kafka, nil, jobTopics, 30*time.Minute, logger.NewLogger())

	drafts := []models.Booking{candidate(models.KindVehicle, "bk-3")}
	store.On("ListExpirableDrafts", mock.Anything, mock.Anything).Return(drafts, nil)
	// Payment landed between scan and write; the guard skips the record
	store.On("ApplyTransition", mock.Anything, models.KindVehicle, "bk-3", mock.Anything).Return(false, nil)

	applied, err := j.ExpireDraftBookings(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, applied)
	kafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBookingStatusesIsolatesFailures(t *testing.T) {
	store := new(MockStore)
	kafka := new(MockPublisher)
	j := jobs.New(store, kafka, nil, jobTopics, 30*time.Minute, logger.NewLogger())

	list := []models.Booking{
		candidate(models.KindActivity, "bk-4"),
		candidate(models.KindRestaurant, "bk-5"),
		candidate(models.KindPackage, "bk-6"),
	}
	store.On("ListCompletable", mock.Anything, mock.Anything).Return(list, nil)

	completeTr := mock.MatchedBy(func(tr db.Transition) bool {
		return tr.To.Status == models.BookingCompleted && tr.To.PaymentStatus == models.PayApproved
	})
	store.On("ApplyTransition", mock.Anything, models.KindActivity, "bk-4", completeTr).Return(true, nil)
	// One record errors; the pass continues to the rest
	store.On("ApplyTransition", mock.Anything, models.KindRestaurant, "bk-5", completeTr).Return(false, errors.New("deadlock"))
	store.On("ApplyTransition", mock.Anything, models.KindPackage, "bk-6", completeTr).Return(true, nil)
	kafka.On("Publish", "bookings.completed", mock.Anything, mock.Anything).Return(nil).Twice()

	applied, err := j.UpdateBookingStatuses(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, applied)
	store.AssertExpectations(t)
}

func TestMarkNoShows(t *testing.T) {
	store := new(MockStore)
	kafka := new(MockPublisher)
	j := jobs.New(store, kafka, nil, jobTopics, 30*time.Minute, logger.NewLogger())

	list := []models.Booking{candidate(models.KindEvent, "bk-7")}
	store.On("ListNoShowCandidates", mock.Anything, mock.Anything).Return(list, nil)
	store.On("ApplyTransition", mock.Anything, models.KindEvent, "bk-7", mock.MatchedBy(func(tr db.Transition) bool {
		return tr.To.Status == models.BookingNoShow && tr.To.PaymentStatus == models.PayApproved
	})).Return(true, nil)
	kafka.On("Publish", "bookings.no_show", "bk-7", mock.Anything).Return(nil)

	applied, err := j.MarkNoShows(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, applied)
	kafka.AssertExpectations(t)
}

func TestJobsScanFailure(t *testing.T) {
	store := new(MockStore)
	j := jobs.New(store, nil, nil, jobTopics, 30*time.Minute, logger.NewLogger())

	store.On("ListExpirableDrafts", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := j.ExpireDraftBookings(context.Background())
	assert.Error(t, err)
	store.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobsDeferToHeldLock(t *testing.T) {
	store := new(MockStore)
	lock := new(MockLocker)
	j := jobs.New(store, nil, lock, jobTopics, 30*time.Minute, logger.NewLogger())

	store.On("ListExpirableDrafts", mock.Anything, mock.Anything).Return([]models.Booking{
		candidate(models.KindActivity, "bk-10"),
		candidate(models.KindEvent, "bk-11"),
	}, nil)

	// A webhook holds bk-10; the job leaves it to the lock holder
	lock.On("Acquire", mock.Anything, models.KindActivity, "bk-10", "job:expire-draft-bookings").Return(false, nil)
	lock.On("Acquire", mock.Anything, models.KindEvent, "bk-11", "job:expire-draft-bookings").Return(true, nil)
	lock.On("Release", mock.Anything, models.KindEvent, "bk-11", "job:expire-draft-bookings").Return(nil)
	store.On("ApplyTransition", mock.Anything, models.KindEvent, "bk-11", mock.Anything).Return(true, nil)

	applied, err := j.ExpireDraftBookings(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, applied)
	store.AssertNotCalled(t, "ApplyTransition", mock.Anything, models.KindActivity, "bk-10", mock.Anything)
	lock.AssertExpectations(t)
}

func TestJobsProceedWhenLockErrors(t *testing.T) {
	store := new(MockStore)
	lock := new(MockLocker)
	j := jobs.New(store, nil, lock, jobTopics, 30*time.Minute, logger.NewLogger())

	store.On("ListNoShowCandidates", mock.Anything, mock.Anything).Return([]models.Booking{
		candidate(models.KindVehicle, "bk-12"),
	}, nil)
	// Redis down; the conditional update still guards the write
	lock.On("Acquire", mock.Anything, models.KindVehicle, "bk-12", "job:mark-no-shows").Return(false, errors.New("connection refused"))
	store.On("ApplyTransition", mock.Anything, models.KindVehicle, "bk-12", mock.Anything).Return(true, nil)

	applied, err := j.MarkNoShows(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, applied)
	lock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobsWithoutKafkaStillTransition(t *testing.T) {
	store := new(MockStore)
	j := jobs.New(store, nil, nil, jobTopics, 30*time.Minute, logger.NewLogger())

	store.On("ListNoShowCandidates", mock.Anything, mock.Anything).Return([]models.Booking{
		candidate(models.KindPackage, "bk-8"),
	}, nil)
	store.On("ApplyTransition", mock.Anything, models.KindPackage, "bk-8", mock.Anything).Return(true, nil)

	applied, err := j.MarkNoShows(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, applied)
}
