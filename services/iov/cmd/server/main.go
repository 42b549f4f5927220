package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"iovid/pkg/authn"
	"iovid/pkg/db"
	"iovid/pkg/entity"
	"iovid/pkg/httpx"
	"iovid/pkg/keystore"
	"iovid/services/iov/internal/addrpool"
	"iovid/services/iov/internal/config"
	"iovid/services/iov/internal/consent"
	"iovid/services/iov/internal/identity"
	"iovid/services/iov/internal/interactions"
	"iovid/services/iov/internal/ledger"
	"iovid/services/iov/internal/notify"
	"iovid/services/iov/internal/oracle"
	"iovid/services/iov/internal/sensors"
	"iovid/services/iov/internal/wallet"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(os.Getenv("IOV_CONFIG"))
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	lg := ledger.NewMemory()

	var poolState addrpool.StateStore = &addrpool.FileState{Path: cfg.Pool.StatePath}
	var wallets wallet.Store = wallet.NewMemStore()
	if cfg.Ledger.DatabaseURL != "" {
		dbpool, err := db.Connect(ctx, cfg.Ledger.DatabaseURL)
		if err != nil {
			log.Error("connect database", "err", err)
			os.Exit(1)
		}
		pgPool := &addrpool.PGState{Pool: dbpool, Key: "default"}
		pgWallets := wallet.NewPGStore(dbpool)
		if err := pgPool.EnsureSchema(ctx); err != nil {
			log.Error("ensure pool schema", "err", err)
			os.Exit(1)
		}
		if err := pgWallets.EnsureSchema(ctx); err != nil {
			log.Error("ensure wallet schema", "err", err)
			os.Exit(1)
		}
		poolState = pgPool
		wallets = pgWallets
	}

	candidates := make([]addrpool.Account, 0, len(cfg.Pool.Accounts))
	for _, a := range cfg.Pool.Accounts {
		candidates = append(candidates, addrpool.Account{Address: a.Address, PrivateKey: a.PrivateKey})
	}
	pool, err := addrpool.NewManager(ctx, lg, poolState, candidates, log)
	if err != nil {
		log.Error("init address pool", "err", err)
		os.Exit(1)
	}

	keys, err := keystore.NewDirStore(cfg.Keystore.Dir)
	if err != nil {
		log.Error("init keystore", "err", err)
		os.Exit(1)
	}

	ids := identity.NewManager(lg, pool, keys, log)
	recorder := interactions.NewRecorder(pool, lg)
	gen := oracle.New(cfg.Oracle.BaseURL, cfg.Oracle.Model, cfg.Oracle.RequestTimeout)
	engine := consent.NewEngine(wallets, gen, sensors.Simulated{}, recorder, cfg.Oracle.RequestTimeout, log)
	var sealSecret []byte
	if cfg.Webhook.SealSecret != "" {
		sealSecret = []byte(cfg.Webhook.SealSecret)
	}
	notifier := notify.New(cfg.Webhook.Secret, sealSecret, cfg.Webhook.DeliveryTimeout, log)

	deliverOutcome := func(replyURL, ownerDID, requesterDID, requestID string, out consent.Outcome) {
		if replyURL == "" || out.Status == consent.StatusPending {
			return
		}
		go func() {
			dctx, cancel := context.WithTimeout(context.Background(), cfg.Webhook.DeliveryTimeout)
			defer cancel()
			if err := notifier.Deliver(dctx, replyURL, ownerDID, requesterDID, requestID, out); err != nil {
				log.Warn("outcome delivery failed", "request_id", requestID, "err", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/iov", func(api chi.Router) {

		api.Post("/identities", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Name string `json:"name"`
				Type string `json:"type"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
				return
			}
			typ, err := entity.Parse(req.Type)
			if err != nil {
				httpx.WriteError(w, 400, httpx.CodeBadType, err.Error(), nil)
				return
			}
			created, err := ids.CreateIdentity(r.Context(), req.Name, typ)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "identity": created})
		})

		api.Get("/identities/{did}/verify", func(w http.ResponseWriter, r *http.Request) {
			valid, err := ids.VerifyDID(r.Context(), chi.URLParam(r, "did"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "valid": valid})
		})

		api.Get("/identities/{did}/document", func(w http.ResponseWriter, r *http.Request) {
			doc, err := ids.Document(r.Context(), chi.URLParam(r, "did"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
		})

		api.Post("/identities/{did}/vehicles", func(w http.ResponseWriter, r *http.Request) {
			var req identity.VehicleSpec
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
				return
			}
			v, err := ids.RegisterVehicle(r.Context(), chi.URLParam(r, "did"), req)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "vehicle": v})
		})

		api.Get("/identities/{did}/vehicles", func(w http.ResponseWriter, r *http.Request) {
			vehicles, err := ids.UserVehicles(r.Context(), chi.URLParam(r, "did"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "vehicles": vehicles})
		})

		api.Post("/vehicles/{did}/transfer", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				NewOwnerDID string `json:"new_owner_did"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
				return
			}
			if err := ids.TransferOwnership(r.Context(), chi.URLParam(r, "did"), req.NewOwnerDID); err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "status": "transferred"})
		})

		api.Post("/credentials", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				IssuerDID  string         `json:"issuer_did"`
				SubjectDID string         `json:"subject_did"`
				Claims     map[string]any `json:"claims"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
				return
			}
			cred, err := ids.IssueCredential(r.Context(), req.IssuerDID, req.SubjectDID, req.Claims)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if _, werr := wallets.Mutate(r.Context(), req.SubjectDID, func(w *wallet.Wallet) error {
				w.Credentials = append(w.Credentials, wallet.Credential{
					ID:       cred.ID,
					IssuedBy: req.IssuerDID,
					Payload:  req.Claims,
				})
				return nil
			}); werr != nil {
				log.Warn("store credential in wallet", "credential_id", cred.ID, "err", werr)
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "credential": cred})
		})

		api.Get("/credentials/{id}/verify", func(w http.ResponseWriter, r *http.Request) {
			cred, ok, err := ids.VerifyCredential(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "valid": ok, "credential": cred})
		})

		api.Post("/requests", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				RequesterDID  string `json:"requester_did"`
				RequesterType string `json:"requester_type"`
				OwnerDID      string `json:"owner_did"`
				DataType      string `json:"data_type"`
				Reason        string `json:"reason"`
				IsEmergency   bool   `json:"is_emergency"`
				ReplyURL      string `json:"reply_url"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
				return
			}
			requestID := "req_" + uuid.NewString()
			typ := ledger.InteractionRequest
			if req.RequesterType == "mechanic" {
				typ = ledger.InteractionMechanicRequest
			}
			if _, err := recorder.Record(r.Context(), req.RequesterDID, req.OwnerDID, typ, map[string]any{
				"request_id":     requestID,
				"data_type":      req.DataType,
				"reason":         req.Reason,
				"requester_type": req.RequesterType,
				"is_emergency":   req.IsEmergency,
			}); err != nil {
				writeDomainError(w, err)
				return
			}
			out, err := engine.Evaluate(r.Context(), consent.Request{
				RequestID:     requestID,
				RequesterDID:  req.RequesterDID,
				RequesterType: req.RequesterType,
				OwnerDID:      req.OwnerDID,
				DataType:      req.DataType,
				Reason:        req.Reason,
				IsEmergency:   req.IsEmergency,
				ReplyURL:      req.ReplyURL,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			deliverOutcome(req.ReplyURL, req.OwnerDID, req.RequesterDID, requestID, out)
			httpx.WriteJSON(w, 200, map[string]any{"request_id": requestID, "outcome": out})
		})

		api.Group(func(priv chi.Router) {
			if cfg.Auth.Required {
				priv.Use(authn.Middleware(ids, cfg.Auth.MaxClockSkew))
			}

			priv.Post("/wallet/{did}/requests/{request_id}/respond", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Approve bool `json:"approve"`
				}
				if err := httpx.ReadJSON(r, &req); err != nil {
					httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
					return
				}
				ownerDID := chi.URLParam(r, "did")
				requestID := chi.URLParam(r, "request_id")
				pending := pendingRequest(r.Context(), wallets, ownerDID, requestID)
				out, err := engine.Respond(r.Context(), ownerDID, requestID, req.Approve)
				if err != nil {
					writeDomainError(w, err)
					return
				}
				deliverOutcome(pending.ReplyURL, ownerDID, pending.RequesterDID, requestID, out)
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "outcome": out})
			})

			priv.Get("/wallet/{did}", func(w http.ResponseWriter, r *http.Request) {
				wl, err := wallets.Get(r.Context(), chi.URLParam(r, "did"))
				if err != nil {
					writeDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "wallet": wl})
			})

			priv.Put("/wallet/{did}/policies/{data_type}", func(w http.ResponseWriter, r *http.Request) {
				var req wallet.Policy
				if err := httpx.ReadJSON(r, &req); err != nil {
					httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
					return
				}
				dataType := chi.URLParam(r, "data_type")
				wl, err := wallets.Mutate(r.Context(), chi.URLParam(r, "did"), func(w *wallet.Wallet) error {
					w.Policies[dataType] = req
					return nil
				})
				if err != nil {
					writeDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "policies": wl.Policies})
			})

			priv.Delete("/wallet/{did}/notifications", func(w http.ResponseWriter, r *http.Request) {
				_, err := wallets.Mutate(r.Context(), chi.URLParam(r, "did"), func(w *wallet.Wallet) error {
					w.Notifications = nil
					return nil
				})
				if err != nil {
					writeDomainError(w, err)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "status": "cleared"})
			})

			priv.Post("/wallet/{did}/unblock", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					DID string `json:"did"`
				}
				if err := httpx.ReadJSON(r, &req); err != nil {
					httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
					return
				}
				var found bool
				_, err := wallets.Mutate(r.Context(), chi.URLParam(r, "did"), func(w *wallet.Wallet) error {
					found = w.Unblock(req.DID)
					return nil
				})
				if err != nil {
					writeDomainError(w, err)
					return
				}
				if !found {
					httpx.WriteError(w, 404, httpx.CodeNotBlocked, "sender is not on the block list", nil)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "status": "unblocked"})
			})
		})

		api.Get("/interactions/{did}", func(w http.ResponseWriter, r *http.Request) {
			hist, err := recorder.History(r.Context(), chi.URLParam(r, "did"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "interactions": hist})
		})

		api.Get("/interactions/{did}/unanswered", func(w http.ResponseWriter, r *http.Request) {
			open, err := recorder.Unanswered(r.Context(), chi.URLParam(r, "did"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "interactions": open})
		})
	})

	log.Info("iov service listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// pendingRequest peeks at a queued consent request before it is resolved,
// so the outcome can still be delivered to its reply endpoint afterwards.
func pendingRequest(ctx context.Context, wallets wallet.Store, ownerDID, requestID string) wallet.Request {
	wl, err := wallets.Get(ctx, ownerDID)
	if err != nil {
		return wallet.Request{}
	}
	for _, r := range wl.PendingRequests {
		if r.ID == requestID {
			return r
		}
	}
	return wallet.Request{}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, identity.ErrIdentityNotFound),
		errors.Is(err, identity.ErrDocumentNotFound),
		errors.Is(err, consent.ErrRequestNotFound):
		httpx.WriteError(w, 404, httpx.CodeNotFound, err.Error(), nil)
	case errors.Is(err, addrpool.ErrResourceExhausted):
		httpx.WriteError(w, 503, httpx.CodePoolExhausted, err.Error(), nil)
	case errors.Is(err, ledger.ErrUnavailable):
		httpx.WriteError(w, 503, httpx.CodeLedgerUnavailable, err.Error(), nil)
	case errors.Is(err, ledger.ErrTransactionRejected), errors.Is(err, identity.ErrLedgerWriteFailed):
		httpx.WriteError(w, 502, httpx.CodeLedgerWriteFailed, err.Error(), nil)
	default:
		httpx.WriteError(w, 500, httpx.CodeInternal, err.Error(), nil)
	}
}
