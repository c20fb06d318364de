package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/workflow-engine/internal/application/catalog"
	"github.com/garyjia/workflow-engine/internal/application/guard"
	"github.com/garyjia/workflow-engine/internal/application/workflow"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/garyjia/workflow-engine/internal/infrastructure/definitions"
)

// Version is reported by the health endpoint
var Version = "dev"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine  workflow.Engine
	catalog Catalog
	guards  GuardValidator
	checks  map[string]HealthCheck
	logger  Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.Engine,
	catalog Catalog,
	guards GuardValidator,
	checks map[string]HealthCheck,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:  engine,
		catalog: catalog,
		guards:  guards,
		checks:  checks,
		logger:  logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails describes a rejected transition
type ErrorDetails struct {
	Code      string                 `json:"code"`
	Class     string                 `json:"class"`
	Stage     string                 `json:"stage,omitempty"`
	Retryable bool                   `json:"retryable"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// CheckResponse is the outcome of a dry-run transition check
type CheckResponse struct {
	Allowed    bool                 `json:"allowed"`
	Machine    *domainwf.Machine    `json:"machine"`
	Transition *domainwf.Transition `json:"transition"`
	FromState  *domainwf.State      `json:"from_state,omitempty"`
	ToState    *domainwf.State      `json:"to_state"`
	Guard      *guard.Result        `json:"guard,omitempty"`
}

// ForceRequest is the body of POST /transitions/force
type ForceRequest struct {
	workflow.ForceRequest
	Machine string `json:"machine" binding:"required"`
}

// GuardValidateRequest is the body of POST /guards/validate
type GuardValidateRequest struct {
	Config string `json:"config" binding:"required"`
}

// GuardValidateResponse lists guard configuration problems
type GuardValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// HistoryRequest represents query parameters for history listing
type HistoryRequest struct {
	Limit int `form:"limit"`
}

// AvailableRequest selects the guard input for available transitions.
// GET reads actor_id from the query; POST also accepts entity data and context.
type AvailableRequest struct {
	ActorID    string                 `form:"actor_id" json:"actor_id"`
	EntityData map[string]interface{} `form:"-" json:"entity_data,omitempty"`
	Context    map[string]interface{} `form:"-" json:"context,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
	status := http.StatusOK
	if len(h.checks) > 0 {
		response.Components = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			response.Components[name] = err.Error()
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Components[name] = "ok"
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// CheckTransition handles POST /api/v1/transitions/check
func (h *Handlers) CheckTransition(c *gin.Context) {
	var req workflow.TransitionRequest
	if !h.bind(c, &req) {
		return
	}

	v, err := h.engine.CanTransition(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: CheckResponse{
			Allowed:    true,
			Machine:    v.Machine,
			Transition: v.Transition,
			FromState:  v.FromState,
			ToState:    v.ToState,
			Guard:      v.Guard,
		},
	})
}

// ApplyTransition handles POST /api/v1/transitions/apply
func (h *Handlers) ApplyTransition(c *gin.Context) {
	var req workflow.TransitionRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.engine.ApplyTransition(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ForceTransition handles POST /api/v1/transitions/force
func (h *Handlers) ForceTransition(c *gin.Context) {
	var req ForceRequest
	if !h.bind(c, &req) {
		return
	}
	req.ForceRequest.Machine = domainwf.ParseMachineRef(req.Machine)

	result, err := h.engine.ForceTransition(c.Request.Context(), req.ForceRequest)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Forced transition",
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
		"to_state", req.ToState,
		"actor_id", req.ActorID,
	)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// CurrentState handles GET /api/v1/entities/:entity_type/:entity_id/machines/:machine/state
func (h *Handlers) CurrentState(c *gin.Context) {
	view, err := h.engine.CurrentState(c.Request.Context(),
		c.Param("entity_type"), c.Param("entity_id"), domainwf.ParseMachineRef(c.Param("machine")))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    view,
	})
}

// EntityHistory handles the per-machine and all-machines history routes
func (h *Handlers) EntityHistory(c *gin.Context) {
	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil || req.Limit < 0 {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	var ref domainwf.MachineRef
	if machine := c.Param("machine"); machine != "" {
		ref = domainwf.ParseMachineRef(machine)
	}

	items, err := h.engine.EntityHistory(c.Request.Context(),
		c.Param("entity_type"), c.Param("entity_id"), ref, req.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []workflow.HistoryItem{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    items,
	})
}

// AvailableTransitions handles GET and POST /api/v1/entities/:entity_type/:entity_id/machines/:machine/available
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	var req AvailableRequest
	if c.Request.Method == http.MethodPost {
		if !h.bind(c, &req) {
			return
		}
	} else if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	available, err := h.engine.AvailableTransitions(c.Request.Context(), workflow.AvailableQuery{
		EntityType: c.Param("entity_type"),
		EntityID:   c.Param("entity_id"),
		Machine:    domainwf.ParseMachineRef(c.Param("machine")),
		ActorID:    req.ActorID,
		EntityData: req.EntityData,
		Context:    req.Context,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if available == nil {
		available = []workflow.AvailableTransition{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    available,
	})
}

// RegisterMachine handles POST /api/v1/machines
func (h *Handlers) RegisterMachine(c *gin.Context) {
	var doc definitions.Document
	if !h.bind(c, &doc) {
		return
	}

	def, err := doc.Build()
	if err != nil {
		h.fail(c, err)
		return
	}

	saved, err := h.catalog.Register(c.Request.Context(), def)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    saved,
	})
}

// GetMachine handles GET /api/v1/machines/:machine; ?format=yaml returns the document form
func (h *Handlers) GetMachine(c *gin.Context) {
	def, err := h.catalog.Machine(c.Request.Context(), domainwf.ParseMachineRef(c.Param("machine")))
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("format") == "yaml" {
		c.YAML(http.StatusOK, definitions.FromDefinition(def))
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    def,
	})
}

// DeleteMachine handles DELETE /api/v1/machines/:machine
func (h *Handlers) DeleteMachine(c *gin.Context) {
	if err := h.catalog.DeleteMachine(c.Request.Context(), domainwf.ParseMachineRef(c.Param("machine"))); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListGroups handles GET /api/v1/groups
func (h *Handlers) ListGroups(c *gin.Context) {
	groups, err := h.catalog.ListGroups(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if groups == nil {
		groups = []*domainwf.Group{}
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    groups,
	})
}

// CreateGroup handles POST /api/v1/groups
func (h *Handlers) CreateGroup(c *gin.Context) {
	var group domainwf.Group
	if !h.bind(c, &group) {
		return
	}
	if err := h.catalog.CreateGroup(c.Request.Context(), &group); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    group,
	})
}

// GuardTypes handles GET /api/v1/guards
func (h *Handlers) GuardTypes(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.guards.Types(),
	})
}

// ValidateGuard handles POST /api/v1/guards/validate
func (h *Handlers) ValidateGuard(c *gin.Context) {
	var req GuardValidateRequest
	if !h.bind(c, &req) {
		return
	}

	resp := GuardValidateResponse{Valid: true}
	for _, err := range h.guards.Validate(req.Config) {
		resp.Valid = false
		resp.Errors = append(resp.Errors, err.Error())
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    resp,
	})
}

// bind decodes a JSON body, answering 400 on failure
func (h *Handlers) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// fail writes err with the status its class maps to
func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	resp := Response{Success: false, Error: err.Error()}

	if te, ok := workflow.AsTransitionError(err); ok {
		resp.Error = te.Message
		resp.Details = &ErrorDetails{
			Code:      te.Code,
			Class:     string(te.Class),
			Stage:     string(te.Stage),
			Retryable: te.Retryable(),
			Data:      te.Data,
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, resp)
}

// StatusFor maps an engine or catalog error to an HTTP status
func StatusFor(err error) int {
	if te, ok := workflow.AsTransitionError(err); ok {
		switch te.Class {
		case workflow.ClassRequest:
			if te.Code == workflow.CodeMachineNotFound || te.Code == workflow.CodeTransitionNotFound {
				return http.StatusNotFound
			}
			return http.StatusBadRequest
		case workflow.ClassRejection:
			if te.Code == workflow.CodeGuardFailed {
				return http.StatusForbidden
			}
			return http.StatusConflict
		case workflow.ClassInfrastructure:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}

	switch {
	case errors.Is(err, domainwf.ErrMachineNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrDuplicateMachine),
		errors.Is(err, domainwf.ErrDuplicateGroup),
		errors.Is(err, domainwf.ErrMachineHasHistory):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidGuard),
		errors.Is(err, domainwf.ErrInvalidDefinition),
		errors.Is(err, domainwf.ErrNoInitialState),
		errors.Is(err, domainwf.ErrMultipleInitialStates),
		errors.Is(err, domainwf.ErrNoFinalState),
		errors.Is(err, domainwf.ErrInvalidStateKind),
		errors.Is(err, domainwf.ErrDuplicateSlug),
		errors.Is(err, domainwf.ErrForeignState),
		errors.Is(err, domainwf.ErrStateNotFound),
		errors.Is(err, domainwf.ErrGroupNotFound):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
