package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/ledger"
	"assetline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Ledger    ledger.Ledger
	Backup    backup.Manager
	AppConfig *config.Config
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"completion note is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Assetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Assetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerLogin(group, cfg)
	registerStatus(group, cfg.Ledger)
	registerAssets(group, cfg.Ledger)
	registerTechnicians(group, cfg.Ledger)
	registerWorkOrders(group, cfg.Ledger)
	registerSettings(group, cfg.Ledger, cfg.AppConfig)
	registerBackup(group, cfg.Backup)
	registerEvents(group, cfg.Ledger)
	registerReconcile(group, cfg.Ledger)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrCompletedImmutable) {
		return newAPIError(http.StatusConflict, "completed_immutable", err.Error(), nil)
	}
	var ve ledger.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Reason, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		joinPath(basePath, "health"):     true,
		joinPath(basePath, "auth/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func joinPath(basePath, p string) string {
	joined := path.Join(basePath, p)
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Assetline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerLogin(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Technician login",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.TechnicianID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "technician_id is required", nil)
		}
		t, err := cfg.Ledger.Repo.GetTechnician(ctx, input.Body.TechnicianID)
		if err != nil {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		if t.Password == "" || subtle.ConstantTimeCompare([]byte(t.Password), []byte(input.Body.Password)) != 1 {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		token, err := issueToken(cfg.Auth.JWTSecret, t.ID, cfg.Auth.ttl(), cfg.Ledger.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, Technician: technicianResponse(t)}}, nil
	})
}

func registerStatus(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Dataset status overview",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		assetCounts, err := l.Repo.CountAssetsByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		orderCounts, err := l.Repo.CountWorkOrdersByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		techs, err := l.Repo.ListTechnicians(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"asset_counts":      assetCounts,
			"work_order_counts": orderCounts,
			"technicians":       len(techs),
		}}, nil
	})
}

func registerAssets(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/assets",
		Summary:       "Register asset",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := l.RegisterAsset(ctx, assetFromCreate(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List assets",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Category string `query:"category"`
		Location string `query:"location"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []AssetResponse `json:"body"`
	}, error) {
		items, err := l.Repo.ListAssets(ctx, repo.AssetFilters{
			Status:   input.Status,
			Category: input.Category,
			Location: input.Location,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssetResponse `json:"body"`
		}{Body: mapAssets(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}",
		Summary:     "Get asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		a, err := l.Repo.GetAsset(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset",
		Method:      http.MethodPatch,
		Path:        "/assets/{asset_id}",
		Summary:     "Update asset",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AssetID string             `path:"asset_id"`
		Body    UpdateAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stored, err := l.Repo.GetAsset(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		applyAssetUpdate(&stored, input.Body)
		a, err := l.EditAsset(ctx, stored, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-asset-status",
		Method:      http.MethodPatch,
		Path:        "/assets/{asset_id}/status",
		Summary:     "Override asset status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AssetID string                `path:"asset_id"`
		Body    SetAssetStatusRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := l.UpdateAssetStatus(ctx, input.AssetID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-asset",
		Method:      http.MethodDelete,
		Path:        "/assets/{asset_id}",
		Summary:     "Delete asset",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct{}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := l.DeleteAsset(ctx, input.AssetID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTechnicians(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-technician",
		Method:        http.MethodPost,
		Path:          "/technicians",
		Summary:       "Register technician",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTechnicianRequest `json:"body"`
	}) (*struct {
		Body TechnicianResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := l.RegisterTechnician(ctx, technicianFromCreate(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TechnicianResponse `json:"body"`
		}{Body: technicianResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-technicians",
		Method:      http.MethodGet,
		Path:        "/technicians",
		Summary:     "List technicians",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TechnicianResponse `json:"body"`
	}, error) {
		items, err := l.Repo.ListTechnicians(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TechnicianResponse `json:"body"`
		}{Body: mapTechnicians(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-technician",
		Method:      http.MethodGet,
		Path:        "/technicians/{technician_id}",
		Summary:     "Get technician",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TechnicianID string `path:"technician_id"`
	}) (*struct {
		Body TechnicianResponse `json:"body"`
	}, error) {
		t, err := l.Repo.GetTechnician(ctx, input.TechnicianID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TechnicianResponse `json:"body"`
		}{Body: technicianResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-technician",
		Method:      http.MethodPatch,
		Path:        "/technicians/{technician_id}",
		Summary:     "Update technician",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TechnicianID string                  `path:"technician_id"`
		Body         UpdateTechnicianRequest `json:"body"`
	}) (*struct {
		Body TechnicianResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stored, err := l.Repo.GetTechnician(ctx, input.TechnicianID)
		if err != nil {
			return nil, handleError(err)
		}
		applyTechnicianUpdate(&stored, input.Body)
		t, err := l.EditTechnician(ctx, stored, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TechnicianResponse `json:"body"`
		}{Body: technicianResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-technician-rank",
		Method:      http.MethodPatch,
		Path:        "/technicians/{technician_id}/rank",
		Summary:     "Promote technician",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TechnicianID string         `path:"technician_id"`
		Body         SetRankRequest `json:"body"`
	}) (*struct {
		Body TechnicianResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := l.PromoteTechnician(ctx, input.TechnicianID, input.Body.Rank, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TechnicianResponse `json:"body"`
		}{Body: technicianResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-technician",
		Method:      http.MethodDelete,
		Path:        "/technicians/{technician_id}",
		Summary:     "Delete technician",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TechnicianID string `path:"technician_id"`
	}) (*struct {
		Body DeleteTechnicianResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		orphaned, err := l.DeleteTechnician(ctx, input.TechnicianID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteTechnicianResponse `json:"body"`
		}{Body: DeleteTechnicianResponse{Deleted: true, OrphanedOrders: orphaned}}, nil
	})
}

func registerWorkOrders(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-order",
		Method:        http.MethodPost,
		Path:          "/work-orders",
		Summary:       "Create work order",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkOrderRequest `json:"body"`
	}) (*struct {
		Body WorkOrderWithSyncResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.AssetID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "asset_id is required", nil)
		}
		if input.Body.TechnicianID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "technician_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, report, err := l.CreateWorkOrder(ctx, workOrderFromCreate(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkOrderWithSyncResponse `json:"body"`
		}{Body: WorkOrderWithSyncResponse{WorkOrder: workOrderResponse(w), Sync: syncResponse(report)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-orders",
		Method:      http.MethodGet,
		Path:        "/work-orders",
		Summary:     "List work orders",
	}, func(ctx context.Context, input *struct {
		AssetID      string `query:"asset_id"`
		TechnicianID string `query:"technician_id"`
		Status       string `query:"status"`
		Priority     string `query:"priority"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body []WorkOrderResponse `json:"body"`
	}, error) {
		items, err := l.Repo.ListWorkOrders(ctx, repo.WorkOrderFilters{
			AssetID:      input.AssetID,
			TechnicianID: input.TechnicianID,
			Status:       input.Status,
			Priority:     input.Priority,
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WorkOrderResponse `json:"body"`
		}{Body: mapWorkOrders(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-order",
		Method:      http.MethodGet,
		Path:        "/work-orders/{order_id}",
		Summary:     "Get work order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body WorkOrderResponse `json:"body"`
	}, error) {
		w, err := l.Repo.GetWorkOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkOrderResponse `json:"body"`
		}{Body: workOrderResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-order",
		Method:      http.MethodPatch,
		Path:        "/work-orders/{order_id}",
		Summary:     "Edit work order",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OrderID string                 `path:"order_id"`
		Body    UpdateWorkOrderRequest `json:"body"`
	}) (*struct {
		Body WorkOrderWithSyncResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		updated := workOrderFromUpdate(input.OrderID, input.Body)
		w, report, err := l.UpdateWorkOrder(ctx, updated, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkOrderWithSyncResponse `json:"body"`
		}{Body: WorkOrderWithSyncResponse{WorkOrder: workOrderResponse(w), Sync: syncResponse(report)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-work-order-status",
		Method:      http.MethodPatch,
		Path:        "/work-orders/{order_id}/status",
		Summary:     "Transition work order",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OrderID string                    `path:"order_id"`
		Body    SetWorkOrderStatusRequest `json:"body"`
	}) (*struct {
		Body WorkOrderWithSyncResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, report, err := l.UpdateWorkOrderStatus(ctx, input.OrderID, input.Body.Status, stringOrEmpty(input.Body.Note), input.Body.Evidence, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkOrderWithSyncResponse `json:"body"`
		}{Body: WorkOrderWithSyncResponse{WorkOrder: workOrderResponse(w), Sync: syncResponse(report)}}, nil
	})
}

func registerSettings(api huma.API, l ledger.Ledger, appCfg *config.Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Get settings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SettingsResponse `json:"body"`
	}, error) {
		res, err := resolveSettings(ctx, l.Repo, appCfg)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettingsResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/settings",
		Summary:     "Update settings",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body UpdateSettingsRequest `json:"body"`
	}) (*struct {
		Body SettingsResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Theme != nil {
			if err := l.Repo.SetSetting(ctx, repo.SettingTheme, *input.Body.Theme); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Language != nil {
			if err := l.Repo.SetSetting(ctx, repo.SettingLanguage, *input.Body.Language); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Categories != nil {
			if err := l.Repo.SetStringList(ctx, repo.SettingCategories, input.Body.Categories); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Locations != nil {
			if err := l.Repo.SetStringList(ctx, repo.SettingLocations, input.Body.Locations); err != nil {
				return nil, handleError(err)
			}
		}
		res, err := resolveSettings(ctx, l.Repo, appCfg)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettingsResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerBackup(api huma.API, m backup.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "export-backup",
		Method:      http.MethodGet,
		Path:        "/backup",
		Summary:     "Export backup document",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body backup.Document `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		doc, err := m.Export(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body backup.Document `json:"body"`
		}{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "restore-backup",
		Method:           http.MethodPost,
		Path:             "/backup/restore",
		Summary:          "Restore backup document",
		SkipValidateBody: true,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		doc, err := backup.Parse(input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
		}
		if err := m.Restore(ctx, doc, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"restored":    true,
			"assets":      len(doc.Assets),
			"spks":        len(doc.Orders),
			"technicians": len(doc.Technicians),
		}}, nil
	})
}

func registerEvents(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := l.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerReconcile(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "reconcile",
		Method:      http.MethodPost,
		Path:        "/reconcile",
		Summary:     "Recompute technician task counters",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AdjustmentResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		adjustments, err := l.Reconcile(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AdjustmentResponse `json:"body"`
		}{Body: mapAdjustments(adjustments)}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func resolveSettings(ctx context.Context, r repo.Repo, appCfg *config.Config) (SettingsResponse, error) {
	res := SettingsResponse{
		Theme:      appCfg.Theme,
		Language:   appCfg.Language,
		Categories: appCfg.Categories,
		Locations:  appCfg.Locations,
		Ranks:      appCfg.Ranks,
	}
	stored, err := r.ListSettings(ctx)
	if err != nil {
		return res, err
	}
	if v, ok := stored[repo.SettingTheme]; ok {
		res.Theme = v
	}
	if v, ok := stored[repo.SettingLanguage]; ok {
		res.Language = v
	}
	if cats, err := r.GetStringList(ctx, repo.SettingCategories); err == nil && cats != nil {
		res.Categories = cats
	}
	if locs, err := r.GetStringList(ctx, repo.SettingLocations); err == nil && locs != nil {
		res.Locations = locs
	}
	res.Categories = nonNilSlice(res.Categories)
	res.Locations = nonNilSlice(res.Locations)
	res.Ranks = nonNilSlice(res.Ranks)
	return res, nil
}
