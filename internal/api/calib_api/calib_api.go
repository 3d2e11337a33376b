package calib_api

import (
	"net/http"

	"github.com/BearBump/CalibBox/internal/api/authn"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/services/accounts"
	"github.com/BearBump/CalibBox/internal/services/equipment"
	"github.com/BearBump/CalibBox/internal/services/jobs"
	"github.com/BearBump/CalibBox/internal/services/measurements"
	"github.com/BearBump/CalibBox/internal/services/requests"
	"github.com/BearBump/CalibBox/internal/services/results"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

type Services struct {
	Accounts     *accounts.Directory
	Equipment    *equipment.Registry
	Requests     *requests.Intake
	Jobs         *jobs.Dispatcher
	Results      *results.Recorder
	Measurements *measurements.Ledger
}

// API exposes the calibration workflow over JSON/HTTP.
type API struct {
	svc  Services
	auth *authn.Authenticator
	log  *zap.Logger
}

func New(svc Services, auth *authn.Authenticator, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{svc: svc, auth: auth, log: log}
}

// endpoint returns the HTTP status and body of a successful call.
type endpoint func(r *http.Request, actor models.Actor) (int, any, error)

func (a *API) wrap(h endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorOf(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		status, body, err := h(r, actor)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if body == nil {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, body)
	}
}

// Router builds the chi router. Swagger UI is served at /docs/* when swaggerPath is set.
func (a *API) Router(swaggerPath string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, swaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.auth.Middleware)

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Put("/", a.wrap(a.upsertAccount))
			r.Get("/", a.wrap(a.getAccount))
			r.Delete("/", a.wrap(a.removeAccount))
		})

		r.Route("/equipment", func(r chi.Router) {
			r.Post("/", a.wrap(a.registerEquipment))
			r.Get("/due", a.wrap(a.listDueEquipment))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.wrap(a.getEquipment))
				r.Delete("/", a.wrap(a.deleteEquipment))
				r.Put("/status", a.wrap(a.updateEquipmentStatus))
				r.Put("/attributes", a.wrap(a.updateEquipmentAttributes))
				r.Put("/category", a.wrap(a.changeEquipmentCategory))
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", a.wrap(a.createRequest))
			r.Get("/", a.wrap(a.listRequests))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.wrap(a.getRequest))
				r.Post("/transitions", a.wrap(a.transitionRequest))
				r.Post("/job", a.wrap(a.createJob))
				r.Get("/job", a.wrap(a.getJobByRequest))
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", a.wrap(a.listJobs))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.wrap(a.getJob))
				r.Put("/technician", a.wrap(a.assignTechnician))
				r.Put("/status", a.wrap(a.advanceJob))
				r.Put("/notes", a.wrap(a.updateJobNotes))
				r.Post("/result", a.wrap(a.recordResult))
				r.Get("/result", a.wrap(a.getResultByJob))
			})
		})

		r.Route("/results/{id}", func(r chi.Router) {
			r.Get("/", a.wrap(a.getResult))
			r.Post("/measurements", a.wrap(a.addMeasurement))
			r.Get("/measurements", a.wrap(a.listMeasurements))
			r.Get("/measurements/export", a.exportMeasurements)
		})

		r.Route("/measurements/{id}", func(r chi.Router) {
			r.Put("/", a.wrap(a.updateMeasurement))
			r.Delete("/", a.wrap(a.deleteMeasurement))
		})
	})

	return r
}
