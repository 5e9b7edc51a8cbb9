package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/pkg/id"
)

func candidate(user, token string, device *string) *domain.PushToken {
	return &domain.PushToken{
		TokenID:   id.Prefixed("ptk"),
		UserID:    user,
		Token:     token,
		DeviceID:  device,
		Platform:  domain.PlatformIOS,
		IsActive:  true,
		CreatedAt: t0,
	}
}

func TestRegister_SameTokenTwiceReactivatesOneRow(t *testing.T) {
	db := openTestDB(t)
	repo := NewPushTokenRepo(db)
	ctx := context.Background()

	first, outcome, err := repo.Register(ctx, candidate("u1", "abc", nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, outcome)

	changed, err := repo.Deactivate(ctx, "u1", "abc", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)

	second, outcome, err := repo.Register(ctx, candidate("u1", "abc", nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReactivated, outcome)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Model(&pushTokenModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	active, err := repo.ListActiveByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].DeactivatedAt)
}

func TestRegister_DeviceRotation(t *testing.T) {
	repo := NewPushTokenRepo(openTestDB(t))
	ctx := context.Background()
	device := "pixel-8"

	_, _, err := repo.Register(ctx, candidate("u1", "old", &device))
	require.NoError(t, err)
	newID, outcome, err := repo.Register(ctx, candidate("u1", "new", &device))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeRotated, outcome)
	active, err := repo.ListActiveByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, newID, active[0].TokenID)
	assert.Equal(t, "new", active[0].Token)
}

func TestRegister_OtherDeviceUntouched(t *testing.T) {
	repo := NewPushTokenRepo(openTestDB(t))
	ctx := context.Background()
	phone, tablet := "phone", "tablet"

	_, _, err := repo.Register(ctx, candidate("u1", "p", &phone))
	require.NoError(t, err)
	_, outcome, err := repo.Register(ctx, candidate("u1", "t", &tablet))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCreated, outcome)
	active, err := repo.ListActiveByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRegister_ConcurrentSameDeviceLeavesOneActive(t *testing.T) {
	repo := NewPushTokenRepo(openTestDB(t))
	ctx := context.Background()
	device := "shared"

	var wg sync.WaitGroup
	for _, tok := range []string{"t1", "t2", "t3", "t4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Register(ctx, candidate("u1", tok, &device))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := repo.ListActiveByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestDeactivate_NoMatch(t *testing.T) {
	repo := NewPushTokenRepo(openTestDB(t))
	changed, err := repo.Deactivate(context.Background(), "u1", "missing", t0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestListActive_AllUsers(t *testing.T) {
	repo := NewPushTokenRepo(openTestDB(t))
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		_, _, err := repo.Register(ctx, candidate(u, "tok-"+u, nil))
		require.NoError(t, err)
	}
	_, err := repo.Deactivate(ctx, "u2", "tok-u2", t0)
	require.NoError(t, err)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRetryableRegister(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate key", fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}, true},
		{"mysql lock wait timeout", &mysql.MySQLError{Number: 1205}, false},
		{"other", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableRegister(tt.err))
		})
	}
}
