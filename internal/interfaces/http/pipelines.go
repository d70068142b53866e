package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"pipeline-orchestrator/internal/application"
	"pipeline-orchestrator/internal/domain"
)

// scopes resolves the authorization scope of nested entities through their
// owning pipeline.
type scopes struct {
	pipelines *application.PipelineDefinitionService
}

func (s scopes) of(c echo.Context, pipelineID string) domain.ServiceResult[domain.PipelineDefinition] {
	return s.pipelines.GetByID(c.Request().Context(), pipelineID)
}

func (s scopes) all(c echo.Context) (map[string]domain.Scope, domain.ServiceResult[[]domain.PipelineDefinition]) {
	res := s.pipelines.GetAll(c.Request().Context())
	out := make(map[string]domain.Scope, len(res.Object))
	for _, p := range res.Object {
		out[p.ID] = application.PipelineScope(p)
	}
	return out, res
}

type PipelinesHandler struct {
	service *application.PipelineDefinitionService
}

func NewPipelinesHandler(service *application.PipelineDefinitionService) *PipelinesHandler {
	return &PipelinesHandler{service: service}
}

func (h *PipelinesHandler) canSee(c echo.Context) func(domain.PipelineDefinition) bool {
	return func(p domain.PipelineDefinition) bool {
		return allowed(c, domain.KindPipelineDefinition, application.PipelineScope(p), domain.ActionView)
	}
}

func (h *PipelinesHandler) List(c echo.Context) error {
	q := paging(c, application.QueryOptions[domain.PipelineDefinition]{Filter: h.canSee(c)})
	return respond(c, stdhttp.StatusOK, h.service.Query(c.Request().Context(), q))
}

func (h *PipelinesHandler) ListAutoScheduled(c echo.Context) error {
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAllAutomaticallyScheduled(c.Request().Context()), h.canSee(c)))
}

func (h *PipelinesHandler) Get(c echo.Context) error {
	res := h.service.GetByID(c.Request().Context(), c.Param("id"))
	if !res.HasError() && !h.canSee(c)(res.Object) {
		return forbidden(c)
	}
	return respond(c, stdhttp.StatusOK, res)
}

func (h *PipelinesHandler) Create(c echo.Context) error {
	var req domain.PipelineDefinition
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	if !allowed(c, domain.KindPipelineDefinition, domain.Scope{PipelineGroupID: req.PipelineGroupID}, domain.ActionAdmin) {
		return forbidden(c)
	}
	return respond(c, stdhttp.StatusCreated, h.service.Add(c.Request().Context(), req))
}

// authorizeStored loads the pipeline and checks action on it. It writes the
// response and returns false when the request must stop.
func (h *PipelinesHandler) authorizeStored(c echo.Context, id string, action domain.Action) (bool, error) {
	res := h.service.GetByID(c.Request().Context(), id)
	if res.HasError() {
		return false, handleError(c, res.Err, res.Message)
	}
	if !allowed(c, domain.KindPipelineDefinition, application.PipelineScope(res.Object), action) {
		return false, forbidden(c)
	}
	return true, nil
}

func (h *PipelinesHandler) Update(c echo.Context) error {
	var req domain.PipelineDefinition
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.ID = c.Param("id")
	if ok, err := h.authorizeStored(c, req.ID, domain.ActionAdmin); !ok {
		return err
	}
	if !allowed(c, domain.KindPipelineDefinition, application.PipelineScope(req), domain.ActionAdmin) {
		return forbidden(c)
	}
	return respond(c, stdhttp.StatusOK, h.service.Update(c.Request().Context(), req))
}

func (h *PipelinesHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if ok, err := h.authorizeStored(c, id, domain.ActionAdmin); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, h.service.Delete(c.Request().Context(), id))
}

func (h *PipelinesHandler) AssignToGroup(c echo.Context) error {
	var req struct {
		PipelineGroupID   string `json:"pipeline_group_id"`
		PipelineGroupName string `json:"pipeline_group_name"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	id := c.Param("id")
	if ok, err := h.authorizeStored(c, id, domain.ActionAdmin); !ok {
		return err
	}
	if !allowed(c, domain.KindPipelineDefinition, domain.Scope{PipelineID: id, PipelineGroupID: req.PipelineGroupID}, domain.ActionAdmin) {
		return forbidden(c)
	}
	return respond(c, stdhttp.StatusOK, h.service.AssignToGroup(c.Request().Context(), id, req.PipelineGroupID, req.PipelineGroupName))
}

func (h *PipelinesHandler) UnassignFromGroup(c echo.Context) error {
	id := c.Param("id")
	if ok, err := h.authorizeStored(c, id, domain.ActionAdmin); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, h.service.UnassignFromGroup(c.Request().Context(), id))
}

type StagesHandler struct {
	service *application.StageDefinitionService
	scopes  scopes
}

func NewStagesHandler(service *application.StageDefinitionService, pipelines *application.PipelineDefinitionService) *StagesHandler {
	return &StagesHandler{service: service, scopes: scopes{pipelines: pipelines}}
}

// authorize checks action against the pipeline that owns pipelineID's
// children, writing the response when the request must stop.
func (s scopes) authorize(c echo.Context, kind domain.EntityKind, pipelineID string, action domain.Action) (bool, error) {
	p := s.of(c, pipelineID)
	if p.HasError() {
		return false, handleError(c, p.Err, p.Message)
	}
	if !allowed(c, kind, application.PipelineScope(p.Object), action) {
		return false, forbidden(c)
	}
	return true, nil
}

func (h *StagesHandler) List(c echo.Context) error {
	byPipeline, pipelines := h.scopes.all(c)
	if pipelines.HasError() {
		return handleError(c, pipelines.Err, pipelines.Message)
	}
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAll(c.Request().Context()), func(st domain.StageDefinition) bool {
		return allowed(c, domain.KindStageDefinition, byPipeline[st.PipelineDefinitionID], domain.ActionView)
	}))
}

func (h *StagesHandler) ListInPipeline(c echo.Context) error {
	pipelineID := c.Param("id")
	if ok, err := h.scopes.authorize(c, domain.KindStageDefinition, pipelineID, domain.ActionView); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAllInPipeline(c.Request().Context(), pipelineID), nil))
}

func (h *StagesHandler) Get(c echo.Context) error {
	res := h.service.GetByID(c.Request().Context(), c.Param("id"))
	if res.HasError() {
		return handleError(c, res.Err, res.Message)
	}
	if ok, err := h.scopes.authorize(c, domain.KindStageDefinition, res.Object.PipelineDefinitionID, domain.ActionView); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, res)
}

func (h *StagesHandler) Create(c echo.Context) error {
	var req domain.StageDefinition
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.PipelineDefinitionID = c.Param("id")
	if ok, err := h.scopes.authorize(c, domain.KindStageDefinition, req.PipelineDefinitionID, domain.ActionAdmin); !ok {
		return err
	}
	return respond(c, stdhttp.StatusCreated, h.service.Add(c.Request().Context(), req))
}

// authorizeStored resolves the stored stage's pipeline and checks admin on it.
func (h *StagesHandler) authorizeStored(c echo.Context, id string) (bool, error) {
	res := h.service.GetByID(c.Request().Context(), id)
	if res.HasError() {
		return false, handleError(c, res.Err, res.Message)
	}
	return h.scopes.authorize(c, domain.KindStageDefinition, res.Object.PipelineDefinitionID, domain.ActionAdmin)
}

func (h *StagesHandler) Update(c echo.Context) error {
	var req domain.StageDefinition
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.ID = c.Param("id")
	if ok, err := h.authorizeStored(c, req.ID); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, h.service.Update(c.Request().Context(), req))
}

func (h *StagesHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if ok, err := h.authorizeStored(c, id); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, h.service.Delete(c.Request().Context(), id))
}

type JobsHandler struct {
	service *application.JobDefinitionService
	stages  *application.StageDefinitionService
	scopes  scopes
}

func NewJobsHandler(service *application.JobDefinitionService, stages *application.StageDefinitionService, pipelines *application.PipelineDefinitionService) *JobsHandler {
	return &JobsHandler{service: service, stages: stages, scopes: scopes{pipelines: pipelines}}
}

func (h *JobsHandler) List(c echo.Context) error {
	byPipeline, pipelines := h.scopes.all(c)
	if pipelines.HasError() {
		return handleError(c, pipelines.Err, pipelines.Message)
	}
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAll(c.Request().Context()), func(j domain.JobDefinition) bool {
		return allowed(c, domain.KindJobDefinition, byPipeline[j.PipelineDefinitionID], domain.ActionView)
	}))
}

func (h *JobsHandler) ListInPipeline(c echo.Context) error {
	pipelineID := c.Param("id")
	if ok, err := h.scopes.authorize(c, domain.KindJobDefinition, pipelineID, domain.ActionView); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAllInPipeline(c.Request().Context(), pipelineID), nil))
}

// stagePipeline returns the id of the pipeline embedding stageID.
func (h *JobsHandler) stagePipeline(c echo.Context, stageID string) (string, bool, error) {
	st := h.stages.GetByID(c.Request().Context(), stageID)
	if st.HasError() {
		return "", false, handleError(c, st.Err, st.Message)
	}
	return st.Object.PipelineDefinitionID, true, nil
}

func (h *JobsHandler) ListInStage(c echo.Context) error {
	stageID := c.Param("id")
	pipelineID, ok, err := h.stagePipeline(c, stageID)
	if !ok {
		return err
	}
	if ok, err := h.scopes.authorize(c, domain.KindJobDefinition, pipelineID, domain.ActionView); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, page(c, h.service.GetAllInStage(c.Request().Context(), stageID), nil))
}

func (h *JobsHandler) Get(c echo.Context) error {
	res := h.service.GetByID(c.Request().Context(), c.Param("id"))
	if res.HasError() {
		return handleError(c, res.Err, res.Message)
	}
	if ok, err := h.scopes.authorize(c, domain.KindJobDefinition, res.Object.PipelineDefinitionID, domain.ActionView); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, res)
}

func (h *JobsHandler) Create(c echo.Context) error {
	var req domain.JobDefinition
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.StageDefinitionID = c.Param("id")
	pipelineID, ok, err := h.stagePipeline(c, req.StageDefinitionID)
	if !ok {
		return err
	}
	req.PipelineDefinitionID = pipelineID
	if ok, err := h.scopes.authorize(c, domain.KindJobDefinition, pipelineID, domain.ActionAdmin); !ok {
		return err
	}
	return respond(c, stdhttp.StatusCreated, h.service.Add(c.Request().Context(), req))
}

func (h *JobsHandler) authorizeStored(c echo.Context, id string) (bool, error) {
	res := h.service.GetByID(c.Request().Context(), id)
	if res.HasError() {
		return false, handleError(c, res.Err, res.Message)
	}
	return h.scopes.authorize(c, domain.KindJobDefinition, res.Object.PipelineDefinitionID, domain.ActionAdmin)
}

func (h *JobsHandler) Update(c echo.Context) error {
	var req domain.JobDefinition
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	req.ID = c.Param("id")
	if ok, err := h.authorizeStored(c, req.ID); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, h.service.Update(c.Request().Context(), req))
}

func (h *JobsHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if ok, err := h.authorizeStored(c, id); !ok {
		return err
	}
	return respond(c, stdhttp.StatusOK, h.service.Delete(c.Request().Context(), id))
}
