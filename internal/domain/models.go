package domain

import (
	"slices"
	"time"
)

type EnvironmentVariable struct {
	Key       string `json:"key" dynamodbav:"Key"`
	Value     string `json:"value" dynamodbav:"Value"`
	Secured   bool   `json:"is_secured" dynamodbav:"Secured"`
	Deletable bool   `json:"is_deletable" dynamodbav:"Deletable"`
}

type PipelineDefinition struct {
	ID                   string                `json:"id" dynamodbav:"ID"`
	Name                 string                `json:"name" dynamodbav:"Name"`
	PipelineGroupID      string                `json:"pipeline_group_id,omitempty" dynamodbav:"PipelineGroupID"`
	PipelineGroupName    string                `json:"pipeline_group_name,omitempty" dynamodbav:"PipelineGroupName"`
	AutoScheduling       bool                  `json:"auto_scheduling" dynamodbav:"AutoScheduling"`
	EnvironmentVariables []EnvironmentVariable `json:"environment_variables,omitempty" dynamodbav:"EnvironmentVariables"`
	Stages               []StageDefinition     `json:"stages" dynamodbav:"Stages"`
	CreatedAt            time.Time             `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt            time.Time             `json:"updated_at" dynamodbav:"UpdatedAt"`
}

type StageDefinition struct {
	ID                   string                `json:"id" dynamodbav:"ID"`
	Name                 string                `json:"name" dynamodbav:"Name"`
	PipelineDefinitionID string                `json:"pipeline_definition_id" dynamodbav:"PipelineDefinitionID"`
	TriggerManually      bool                  `json:"trigger_manually" dynamodbav:"TriggerManually"`
	EnvironmentVariables []EnvironmentVariable `json:"environment_variables,omitempty" dynamodbav:"EnvironmentVariables"`
	Jobs                 []JobDefinition       `json:"jobs" dynamodbav:"Jobs"`
	CreatedAt            time.Time             `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt            time.Time             `json:"updated_at" dynamodbav:"UpdatedAt"`
}

type JobDefinition struct {
	ID                   string                `json:"id" dynamodbav:"ID"`
	Name                 string                `json:"name" dynamodbav:"Name"`
	PipelineDefinitionID string                `json:"pipeline_definition_id" dynamodbav:"PipelineDefinitionID"`
	StageDefinitionID    string                `json:"stage_definition_id" dynamodbav:"StageDefinitionID"`
	EnvironmentVariables []EnvironmentVariable `json:"environment_variables,omitempty" dynamodbav:"EnvironmentVariables"`
	CreatedAt            time.Time             `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt            time.Time             `json:"updated_at" dynamodbav:"UpdatedAt"`
}

type User struct {
	ID           string       `json:"id" dynamodbav:"ID"`
	Email        string       `json:"email" dynamodbav:"Email"`
	PasswordHash string       `json:"-" dynamodbav:"PasswordHash"`
	Provider     string       `json:"provider,omitempty" dynamodbav:"Provider"`
	UserGroupIDs []string     `json:"user_group_ids" dynamodbav:"UserGroupIDs"`
	Permissions  []Permission `json:"permissions,omitempty" dynamodbav:"Permissions"`
	CreatedAt    time.Time    `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt    time.Time    `json:"updated_at" dynamodbav:"UpdatedAt"`
}

type UserGroup struct {
	ID          string       `json:"id" dynamodbav:"ID"`
	Name        string       `json:"name" dynamodbav:"Name"`
	UserIDs     []string     `json:"user_ids" dynamodbav:"UserIDs"`
	Permissions []Permission `json:"permissions" dynamodbav:"Permissions"`
	CreatedAt   time.Time    `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time    `json:"updated_at" dynamodbav:"UpdatedAt"`
}

// UserGroupDTO is a group with its member users expanded.
type UserGroupDTO struct {
	UserGroup
	Users []User `json:"users"`
}

func (p PipelineDefinition) GetID() string { return p.ID }
func (u User) GetID() string               { return u.ID }
func (g UserGroup) GetID() string          { return g.ID }

// Clone returns a copy that shares no slices with p.
func (p PipelineDefinition) Clone() PipelineDefinition {
	out := p
	out.EnvironmentVariables = slices.Clone(p.EnvironmentVariables)
	out.Stages = make([]StageDefinition, len(p.Stages))
	for i, s := range p.Stages {
		out.Stages[i] = s.Clone()
	}
	return out
}

func (s StageDefinition) Clone() StageDefinition {
	out := s
	out.EnvironmentVariables = slices.Clone(s.EnvironmentVariables)
	out.Jobs = make([]JobDefinition, len(s.Jobs))
	for i, j := range s.Jobs {
		out.Jobs[i] = j.Clone()
	}
	return out
}

func (j JobDefinition) Clone() JobDefinition {
	out := j
	out.EnvironmentVariables = slices.Clone(j.EnvironmentVariables)
	return out
}

func (u User) Clone() User {
	out := u
	out.UserGroupIDs = slices.Clone(u.UserGroupIDs)
	out.Permissions = slices.Clone(u.Permissions)
	return out
}

func (g UserGroup) Clone() UserGroup {
	out := g
	out.UserIDs = slices.Clone(g.UserIDs)
	out.Permissions = slices.Clone(g.Permissions)
	return out
}

// StageIndex returns the position of the stage with the given id, or -1.
func (p PipelineDefinition) StageIndex(stageID string) int {
	return slices.IndexFunc(p.Stages, func(s StageDefinition) bool { return s.ID == stageID })
}

func (s StageDefinition) JobIndex(jobID string) int {
	return slices.IndexFunc(s.Jobs, func(j JobDefinition) bool { return j.ID == jobID })
}

// AllJobs concatenates the jobs of every stage in stage order.
func (p PipelineDefinition) AllJobs() []JobDefinition {
	jobs := []JobDefinition{}
	for _, s := range p.Stages {
		jobs = append(jobs, s.Jobs...)
	}
	return jobs
}
