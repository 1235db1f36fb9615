// Package api is the watch-request endpoint: the one core-adjacent HTTP
// route a caller uses to start or resurface a watch target.
// Authentication and CORS are the only concerns the core owns directly;
// routing and middleware follow the gorilla/mux+CORS shape common across
// the retrieval pack's chain tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/condwatch/indexer/internal/chain"
	"github.com/condwatch/indexer/internal/coretypes"
	"github.com/condwatch/indexer/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ChainReader is the unary chain capability the endpoint needs to seed a
// brand-new watch target when no row exists for it yet.
type ChainReader interface {
	GetTokenAccount(ctx context.Context, account coretypes.Pubkey) (chain.TokenAccountInfo, bool, error)
}

// watchTokenBalanceRequest is the body of POST /watch-token-balance.
type watchTokenBalanceRequest struct {
	TokenAcct string `json:"tokenAcct" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Handler serves C8.
type Handler struct {
	gw       store.Gateway
	chain    ChainReader
	auth     AuthClient
	validate *validator.Validate
	log      *logrus.Entry
}

// New builds a Handler.
func New(gw store.Gateway, chainClient ChainReader, auth AuthClient, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{gw: gw, chain: chainClient, auth: auth, validate: validator.New(), log: log.WithField("component", "api")}
}

// Router builds the mux with CORS middleware and the single watch route.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/watch-token-balance", h.watchTokenBalance).Methods(http.MethodPost, http.MethodOptions)
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

// watchTokenBalance handles POST /watch-token-balance: resurface an
// existing watch target, flip its status to Watching, or seed a new row
// from an on-chain read.
func (h *Handler) watchTokenBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := h.auth.Validate(ctx, token); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			h.log.WithError(err).Warn("auth sidecar call failed")
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var body watchTokenBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "malformed request body"})
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "tokenAcct is required"})
		return
	}
	tokenAcct, err := coretypes.ParsePubkey(body.TokenAcct)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "tokenAcct is not a valid base58 key"})
		return
	}

	existing, found, err := h.gw.TokenAccountByAcct(ctx, tokenAcct)
	if err != nil {
		h.log.WithError(err).WithField("token_acct", tokenAcct).Warn("token account lookup failed")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "could not look up token account"})
		return
	}

	if found {
		next := coretypes.StatusWatching
		if existing.Status == coretypes.StatusWatching {
			next = coretypes.StatusEnabled
		}
		if err := h.gw.SetTokenAccountStatus(ctx, tokenAcct, next); err != nil {
			h.log.WithError(err).WithField("token_acct", tokenAcct).Warn("status update failed")
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "could not update watch status"})
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "watch status updated"})
		return
	}

	info, onChain, err := h.chain.GetTokenAccount(ctx, tokenAcct)
	if err != nil {
		h.log.WithError(err).WithField("token_acct", tokenAcct).Warn("chain lookup failed")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "could not fetch account from chain"})
		return
	}
	if !onChain {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "token account not found on chain"})
		return
	}
	mint, err := coretypes.ParsePubkey(info.Mint)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "on-chain account is not an SPL token account"})
		return
	}
	owner, err := coretypes.ParsePubkey(info.Owner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "on-chain account is not an SPL token account"})
		return
	}
	if _, err := h.gw.UpsertTokenAccount(ctx, store.TokenAccount{
		TokenAcct: tokenAcct,
		MintAcct:  mint,
		OwnerAcct: owner,
		Amount:    coretypes.ZeroAmount,
		Status:    coretypes.StatusWatching,
	}); err != nil {
		h.log.WithError(err).WithField("token_acct", tokenAcct).Warn("insert failed")
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "could not create watch target"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "watch target created"})
}
