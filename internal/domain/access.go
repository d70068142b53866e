package domain

type EntityKind string

const (
	KindPipelineDefinition EntityKind = "PipelineDefinition"
	KindStageDefinition    EntityKind = "StageDefinition"
	KindJobDefinition      EntityKind = "JobDefinition"
	KindUser               EntityKind = "User"
	KindUserGroup          EntityKind = "UserGroup"
)

type PermissionScope string

const (
	ScopeServer        PermissionScope = "SERVER"
	ScopePipelineGroup PermissionScope = "PIPELINE_GROUP"
	ScopePipeline      PermissionScope = "PIPELINE"
)

type PermissionType string

const (
	PermissionNone     PermissionType = "NONE"
	PermissionViewer   PermissionType = "VIEWER"
	PermissionOperator PermissionType = "OPERATOR"
	PermissionAdmin    PermissionType = "ADMIN"
)

// Rank orders permission types; unknown types rank with NONE.
func (t PermissionType) Rank() int {
	switch t {
	case PermissionViewer:
		return 1
	case PermissionOperator:
		return 2
	case PermissionAdmin:
		return 3
	default:
		return 0
	}
}

// AnyEntity as PermittedEntityID grants the permission on every entity of the scope.
const AnyEntity = "*"

type Permission struct {
	Scope             PermissionScope `json:"scope" dynamodbav:"Scope"`
	Type              PermissionType  `json:"type" dynamodbav:"Type"`
	PermittedEntityID string          `json:"permitted_entity_id,omitempty" dynamodbav:"PermittedEntityID"`
}

type Action string

const (
	ActionView    Action = "view"
	ActionOperate Action = "operate"
	ActionAdmin   Action = "admin"
)

// Scope locates an entity inside the pipeline hierarchy for authorization.
// Server-scoped kinds leave it empty.
type Scope struct {
	PipelineID      string `json:"pipeline_id,omitempty"`
	PipelineGroupID string `json:"pipeline_group_id,omitempty"`
}

// Identity is a verified caller together with its cached permission snapshot.
type Identity struct {
	UserID      string       `json:"user_id"`
	Email       string       `json:"email"`
	Permissions []Permission `json:"permissions"`
}

// AccessPolicy is the scope an entity kind lives in and the permission type
// needed to observe it.
type AccessPolicy struct {
	Scope PermissionScope
	View  PermissionType
}

var accessPolicies = map[EntityKind]AccessPolicy{
	KindPipelineDefinition: {Scope: ScopePipeline, View: PermissionViewer},
	KindStageDefinition:    {Scope: ScopePipeline, View: PermissionViewer},
	KindJobDefinition:      {Scope: ScopePipeline, View: PermissionViewer},
	KindUser:               {Scope: ScopeServer, View: PermissionAdmin},
	KindUserGroup:          {Scope: ScopeServer, View: PermissionAdmin},
}

// PolicyFor returns the access policy of kind. Unknown kinds require server admin.
func PolicyFor(kind EntityKind) AccessPolicy {
	if p, ok := accessPolicies[kind]; ok {
		return p
	}
	return AccessPolicy{Scope: ScopeServer, View: PermissionAdmin}
}
