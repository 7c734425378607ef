package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"storepulse/internal/domain"
	"storepulse/internal/obs"
	"storepulse/internal/report"
	"storepulse/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Generator *report.Generator
	Metrics   *obs.Metrics
	BasePath  string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"report not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the StorePulse API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("StorePulse API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTrigger(group, cfg.Generator)
	registerReportDownload(router, basePath, cfg.Generator)
	registerReportList(group, cfg.Generator)
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerTrigger(api huma.API, gen *report.Generator) {
	type triggerResponse struct {
		ReportID string `json:"report_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "trigger-report",
		Method:        http.MethodPost,
		Path:          "/trigger_report",
		Summary:       "Trigger report generation",
		Description:   "Starts an asynchronous report job and returns its id immediately.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body triggerResponse `json:"body"`
	}, error) {
		id, err := gen.Trigger(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body triggerResponse `json:"body"`
		}{Body: triggerResponse{ReportID: id}}, nil
	})
}

func registerReportList(api huma.API, gen *report.Generator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List report jobs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Report `json:"body"`
	}, error) {
		items, err := gen.Engine.Repo.ListReports(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Report `json:"body"`
		}{Body: items}, nil
	})
}

// registerReportDownload serves GET get_report as a raw chi route: the
// Complete branch streams a CSV file, which does not fit a JSON operation.
func registerReportDownload(router chi.Router, basePath string, gen *report.Generator) {
	router.Get(path.Join(basePath, "get_report"), func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("report_id")
		if id == "" {
			writeErrorJSON(w, http.StatusBadRequest, "bad_request", "report_id is required")
			return
		}
		rep, err := gen.Status(r.Context(), id)
		if errors.Is(err, repo.ErrNotFound) {
			writeErrorJSON(w, http.StatusNotFound, "not_found", "report not found")
			return
		}
		if err != nil {
			writeErrorJSON(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		switch rep.Status {
		case domain.ReportRunning, domain.ReportFailed:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": rep.Status})
		case domain.ReportComplete:
			if rep.FilePath == nil {
				writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "artifact reference missing")
				return
			}
			f, err := os.Open(*rep.FilePath)
			if err != nil {
				writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "artifact not readable")
				return
			}
			defer f.Close()
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=store_report_%s.csv", rep.ID))
			io.Copy(w, f)
		default:
			writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "unknown report state")
		}
	})
}

func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": apiErrorBody{Code: code, Message: message},
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

// registerOpenAPI must run after every operation is registered; the document
// is frozen here so concurrent requests share one immutable payload.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	doc, _ := json.Marshal(api.OpenAPI())
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>StorePulse API Docs</title>
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
  </body>
</html>`, specURL)
}
