package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/memorybank/keyctl/pkg/errutil"
	"github.com/memorybank/keyctl/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &User{}, &Project{}, &Membership{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(db, node, zap.NewNop())
}

func TestFindOrCreateUserIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.FindOrCreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := svc.FindOrCreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, first, second)

	var count int64
	require.NoError(t, svc.db.Model(&User{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestFindOrCreateUserRequiresEmail(t *testing.T) {
	svc := newService(t)

	_, err := svc.FindOrCreateUser(context.Background(), "alice", "")
	require.Error(t, err)
	require.True(t, errutil.HasCode(err, errutil.CodeValidation))
}

func TestFindOrCreateProjectIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	owner, err := svc.FindOrCreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	first, err := svc.FindOrCreateProject(ctx, "My Project!!", owner)
	require.NoError(t, err)

	second, err := svc.FindOrCreateProject(ctx, "My Project!!", owner)
	require.NoError(t, err)
	require.Equal(t, first, second)

	var projects int64
	require.NoError(t, svc.db.Model(&Project{}).Count(&projects).Error)
	require.Equal(t, int64(1), projects)

	var proj Project
	require.NoError(t, svc.db.Where("id = ?", first).First(&proj).Error)
	require.Equal(t, "my-project", proj.Slug)

	var membership Membership
	require.NoError(t, svc.db.Where("project_id = ? AND user_id = ?", first, owner).First(&membership).Error)
	require.Equal(t, RoleOwner, membership.Role)
}

func TestFindOrCreateProjectSlugCollision(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	alice, err := svc.FindOrCreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := svc.FindOrCreateUser(ctx, "bob", "bob@example.com")
	require.NoError(t, err)

	first, err := svc.FindOrCreateProject(ctx, "My Project!!", alice)
	require.NoError(t, err)
	second, err := svc.FindOrCreateProject(ctx, "My Project!!", bob)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	var one, two Project
	require.NoError(t, svc.db.Where("id = ?", first).First(&one).Error)
	require.NoError(t, svc.db.Where("id = ?", second).First(&two).Error)

	require.Equal(t, "my-project", one.Slug)
	require.True(t, strings.HasPrefix(two.Slug, "my-project-"), "got slug %q", two.Slug)
	require.NotEqual(t, one.Slug, two.Slug)
}

func TestFindOrCreateProjectEmptySlugFallback(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	owner, err := svc.FindOrCreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	id, err := svc.FindOrCreateProject(ctx, "!!!", owner)
	require.NoError(t, err)

	var proj Project
	require.NoError(t, svc.db.Where("id = ?", id).First(&proj).Error)
	require.Equal(t, slugFallback, proj.Slug)
}
