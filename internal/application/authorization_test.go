package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pipeline-orchestrator/internal/domain"
)

func TestAllows(t *testing.T) {
	pipelineViewer := domain.Permission{Scope: domain.ScopePipeline, Type: domain.PermissionViewer, PermittedEntityID: "p1"}
	groupOperator := domain.Permission{Scope: domain.ScopePipelineGroup, Type: domain.PermissionOperator, PermittedEntityID: "pg1"}
	anyPipelineAdmin := domain.Permission{Scope: domain.ScopePipeline, Type: domain.PermissionAdmin, PermittedEntityID: domain.AnyEntity}
	serverViewer := domain.Permission{Scope: domain.ScopeServer, Type: domain.PermissionViewer}
	serverAdmin := domain.Permission{Scope: domain.ScopeServer, Type: domain.PermissionAdmin}
	denied := domain.Permission{Scope: domain.ScopeServer, Type: domain.PermissionNone}

	inP1 := domain.Scope{PipelineID: "p1", PipelineGroupID: "pg1"}
	inP2 := domain.Scope{PipelineID: "p2"}

	tests := []struct {
		name   string
		perms  []domain.Permission
		kind   domain.EntityKind
		scope  domain.Scope
		action domain.Action
		want   bool
	}{
		{"pipeline viewer sees its pipeline", []domain.Permission{pipelineViewer}, domain.KindPipelineDefinition, inP1, domain.ActionView, true},
		{"pipeline viewer sees nested jobs", []domain.Permission{pipelineViewer}, domain.KindJobDefinition, inP1, domain.ActionView, true},
		{"pipeline viewer misses other pipeline", []domain.Permission{pipelineViewer}, domain.KindStageDefinition, inP2, domain.ActionView, false},
		{"pipeline viewer cannot operate", []domain.Permission{pipelineViewer}, domain.KindPipelineDefinition, inP1, domain.ActionOperate, false},
		{"group operator operates member pipeline", []domain.Permission{groupOperator}, domain.KindPipelineDefinition, inP1, domain.ActionOperate, true},
		{"group operator outside its group", []domain.Permission{groupOperator}, domain.KindPipelineDefinition, inP2, domain.ActionView, false},
		{"wildcard admin administers any pipeline", []domain.Permission{anyPipelineAdmin}, domain.KindPipelineDefinition, inP2, domain.ActionAdmin, true},
		{"pipeline grant never covers users", []domain.Permission{anyPipelineAdmin}, domain.KindUser, domain.Scope{}, domain.ActionView, false},
		{"server viewer sees pipelines", []domain.Permission{serverViewer}, domain.KindPipelineDefinition, inP2, domain.ActionView, true},
		{"server viewer cannot see users", []domain.Permission{serverViewer}, domain.KindUser, domain.Scope{}, domain.ActionView, false},
		{"server admin sees groups", []domain.Permission{serverAdmin}, domain.KindUserGroup, domain.Scope{}, domain.ActionView, true},
		{"none grants nothing", []domain.Permission{denied}, domain.KindPipelineDefinition, inP1, domain.ActionView, false},
		{"empty snapshot", nil, domain.KindPipelineDefinition, inP1, domain.ActionView, false},
		{"unknown kind needs server admin", []domain.Permission{serverViewer}, domain.EntityKind("Agent"), domain.Scope{}, domain.ActionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := domain.Identity{UserID: "u1", Permissions: tt.perms}
			assert.Equal(t, tt.want, Allows(identity, tt.kind, tt.scope, tt.action))
		})
	}
}

func TestAuthorizationService_PermissionsFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	direct := domain.Permission{Scope: domain.ScopePipeline, Type: domain.PermissionViewer, PermittedEntityID: "p9"}
	groupGrant := domain.Permission{Scope: domain.ScopeServer, Type: domain.PermissionOperator}

	require.NoError(t, f.groups.Insert(ctx, domain.UserGroup{ID: "g1", Name: "confirmed", UserIDs: []string{"u1"}, Permissions: []domain.Permission{groupGrant}}))
	require.NoError(t, f.groups.Insert(ctx, domain.UserGroup{ID: "g2", Name: "pending", Permissions: []domain.Permission{{Scope: domain.ScopeServer, Type: domain.PermissionAdmin}}}))
	require.NoError(t, f.users.Insert(ctx, domain.User{ID: "u1", Email: "u1@x.io", UserGroupIDs: []string{"g1", "g2", "gone"}, Permissions: []domain.Permission{direct}}))

	perms, err := f.authz.PermissionsFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{direct, groupGrant}, perms)

	identity, err := f.authz.IdentityFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@x.io", identity.Email)
	assert.True(t, f.authz.Allows(identity, domain.KindJobDefinition, domain.Scope{PipelineID: "p3"}, domain.ActionOperate))
	assert.False(t, f.authz.Allows(identity, domain.KindUserGroup, domain.Scope{}, domain.ActionView))

	_, err = f.authz.IdentityFor(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
