package membercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) MemberIDs(ctx context.Context, organizationID string) ([]string, error) {
	args := m.Called(ctx, organizationID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockSource) OrganizationsOf(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockSource) AddMember(ctx context.Context, organizationID, userID string) error {
	return m.Called(ctx, organizationID, userID).Error(0)
}

func TestMemberIDs_CachedAfterFirstLoad(t *testing.T) {
	src := &mockSource{}
	src.On("MemberIDs", mock.Anything, "acme").Return([]string{"u1", "u2"}, nil).Once()
	c := New(src, time.Minute)

	for i := 0; i < 3; i++ {
		ids, err := c.MemberIDs(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, ids)
	}
	src.AssertExpectations(t)
}

func TestOrganizationsOf_ErrorsNotCached(t *testing.T) {
	src := &mockSource{}
	src.On("OrganizationsOf", mock.Anything, "u1").Return(nil, errors.New("throttled")).Once()
	src.On("OrganizationsOf", mock.Anything, "u1").Return([]string{"acme"}, nil).Once()
	c := New(src, time.Minute)

	_, err := c.OrganizationsOf(context.Background(), "u1")
	require.Error(t, err)
	orgs, err := c.OrganizationsOf(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, orgs)
	src.AssertExpectations(t)
}

func TestAddMember_Invalidates(t *testing.T) {
	src := &mockSource{}
	src.On("MemberIDs", mock.Anything, "acme").Return([]string{"u1"}, nil).Once()
	src.On("AddMember", mock.Anything, "acme", "u2").Return(nil)
	src.On("MemberIDs", mock.Anything, "acme").Return([]string{"u1", "u2"}, nil).Once()
	c := New(src, time.Minute)

	_, err := c.MemberIDs(context.Background(), "acme")
	require.NoError(t, err)
	require.NoError(t, c.AddMember(context.Background(), "acme", "u2"))
	ids, err := c.MemberIDs(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestExpiry(t *testing.T) {
	src := &mockSource{}
	src.On("MemberIDs", mock.Anything, "acme").Return([]string{"u1"}, nil).Twice()
	c := New(src, 20*time.Millisecond)

	_, err := c.MemberIDs(context.Background(), "acme")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = c.MemberIDs(context.Background(), "acme")
	require.NoError(t, err)
	src.AssertExpectations(t)
}
