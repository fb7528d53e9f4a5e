package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/intermodalpt/backend-sub002/pkg/authn"
	"github.com/intermodalpt/backend-sub002/pkg/config"
	"github.com/intermodalpt/backend-sub002/pkg/db"
	"github.com/intermodalpt/backend-sub002/pkg/domain"
	"github.com/intermodalpt/backend-sub002/pkg/httpx"
	"github.com/intermodalpt/backend-sub002/services/moderation/internal/review"
	"github.com/intermodalpt/backend-sub002/services/moderation/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	pool := db.MustConnect(cfg)
	st := store.New(pool)
	reviewer := review.New(st, log)
	sessions := authn.Config{
		TokenPrefix: cfg.Session.TokenPrefix,
		TTL:         time.Duration(cfg.Session.TTLHours) * time.Hour,
	}

	r := chi.NewRouter()
	r.Use(httpx.RequestLogger(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/v1", func(api chi.Router) {

		api.Post("/auth/sessions", func(w http.ResponseWriter, r *http.Request) {
			actor, ok := requirePermission(w, r, pool, authn.PermAdmin)
			if !ok {
				return
			}
			var req struct {
				UserID uuid.UUID `json:"user_id"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			token, err := authn.IssueSession(r.Context(), pool, sessions, req.UserID)
			if err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			log.Info("session issued",
				zap.String("user_id", req.UserID.String()),
				zap.String("issued_by", actor.UserID.String()))
			httpx.WriteJSON(w, 201, map[string]any{
				"request_id": httpx.NewRequestID(),
				"token":      token,
				"token_hint": "store once; not retrievable again",
			})
		})

		api.Delete("/auth/sessions", func(w http.ResponseWriter, r *http.Request) {
			if _, err := authn.AuthenticateBearer(r.Context(), pool, r.Header.Get("Authorization")); err != nil {
				httpx.WriteError(w, 401, "UNAUTHORIZED", "missing or invalid bearer token", nil)
				return
			}
			token, _ := bearerToken(r)
			if err := authn.RevokeSession(r.Context(), pool, token); err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			w.WriteHeader(204)
		})

		api.Get("/stops/{stop_id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "stop_id"))
			if err != nil {
				httpx.WriteError(w, 400, "BAD_ID", err.Error(), nil)
				return
			}
			stop, err := st.GetStop(r.Context(), id)
			if err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "stop": stop})
		})

		api.Post("/contributions", func(w http.ResponseWriter, r *http.Request) {
			actor, ok := requirePermission(w, r, pool, authn.PermContribute)
			if !ok {
				return
			}
			var req struct {
				StopID  uuid.UUID        `json:"stop_id"`
				Patch   domain.StopPatch `json:"patch"`
				Comment *string          `json:"comment"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if req.Patch.IsEmpty() {
				httpx.WriteError(w, 422, "VALIDATION_FAILURE", "patch does not do anything", nil)
				return
			}
			stop, err := st.GetStop(r.Context(), req.StopID)
			if err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			c := &domain.Contribution{
				ID:       uuid.New(),
				AuthorID: actor.UserID,
				Change: domain.Change{
					StopUpdate: &domain.StopUpdate{Original: *stop, Patch: req.Patch},
				},
				SubmittedAt: time.Now().UTC(),
				Comment:     req.Comment,
			}
			if err := st.InsertContribution(r.Context(), c); err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "contribution": c})
		})

		api.Get("/contributions", func(w http.ResponseWriter, r *http.Request) {
			if _, ok := requirePermission(w, r, pool, authn.PermModerate); !ok {
				return
			}
			onlyPending := r.URL.Query().Get("status") == "pending"
			list, err := st.ListContributions(r.Context(), onlyPending, 100)
			if err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "contributions": list})
		})

		api.Get("/contributions/{contribution_id}", func(w http.ResponseWriter, r *http.Request) {
			if _, ok := requirePermission(w, r, pool, authn.PermModerate); !ok {
				return
			}
			id, err := uuid.Parse(chi.URLParam(r, "contribution_id"))
			if err != nil {
				httpx.WriteError(w, 400, "BAD_ID", err.Error(), nil)
				return
			}
			c, err := st.Contribution(r.Context(), id)
			if err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "contribution": c})
		})

		api.Post("/contributions/{contribution_id}/accept", func(w http.ResponseWriter, r *http.Request) {
			actor, ok := requirePermission(w, r, pool, authn.PermModerate)
			if !ok {
				return
			}
			id, err := uuid.Parse(chi.URLParam(r, "contribution_id"))
			if err != nil {
				httpx.WriteError(w, 400, "BAD_ID", err.Error(), nil)
				return
			}
			var req struct {
				Verify        bool     `json:"verify"`
				IgnoredFields []string `json:"ignored_fields"`
				Comment       *string  `json:"comment"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			ignored := domain.ParseFieldSet(req.IgnoredFields)
			if err := reviewer.Accept(r.Context(), id, actor.UserID, req.Verify, ignored, req.Comment); err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "accepted": true})
		})

		api.Post("/contributions/{contribution_id}/reject", func(w http.ResponseWriter, r *http.Request) {
			actor, ok := requirePermission(w, r, pool, authn.PermModerate)
			if !ok {
				return
			}
			id, err := uuid.Parse(chi.URLParam(r, "contribution_id"))
			if err != nil {
				httpx.WriteError(w, 400, "BAD_ID", err.Error(), nil)
				return
			}
			var req struct {
				Comment *string `json:"comment"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if err := reviewer.Reject(r.Context(), id, actor.UserID, req.Comment); err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "accepted": false})
		})

		api.Post("/contributions/{contribution_id}/preview", func(w http.ResponseWriter, r *http.Request) {
			if _, ok := requirePermission(w, r, pool, authn.PermModerate); !ok {
				return
			}
			id, err := uuid.Parse(chi.URLParam(r, "contribution_id"))
			if err != nil {
				httpx.WriteError(w, 400, "BAD_ID", err.Error(), nil)
				return
			}
			var req struct {
				Verify        bool     `json:"verify"`
				IgnoredFields []string `json:"ignored_fields"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			result, err := reviewer.Preview(r.Context(), id, req.Verify, domain.ParseFieldSet(req.IgnoredFields))
			if err != nil {
				httpx.WriteDomainError(w, log, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "preview": result})
		})
	})

	log.Info("moderation service listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	zc := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return log
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}

func requirePermission(w http.ResponseWriter, r *http.Request, pool *pgxpool.Pool, permission string) (*authn.Identity, bool) {
	actor, err := authn.AuthenticateBearer(r.Context(), pool, r.Header.Get("Authorization"))
	if err != nil {
		if err == authn.ErrUnauthorized {
			httpx.WriteError(w, 401, "UNAUTHORIZED", "missing or invalid bearer token", nil)
		} else {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		}
		return nil, false
	}
	if !authn.HasPermission(actor.Permissions, permission) {
		httpx.WriteError(w, 403, "FORBIDDEN", "missing permission "+permission, nil)
		return nil, false
	}
	return actor, true
}
